package cmd

import (
	"context"
	"fmt"
	"time"

	"AudioDeck/config"
	"AudioDeck/core/engine"
	"AudioDeck/core/project"
	"AudioDeck/core/transport"
	"AudioDeck/model"

	"github.com/spf13/cobra"
)

var (
	sessionTrackSeconds float64
	sessionPlaySeconds  float64
	sessionRecSeconds   float64
	sessionAppend       bool
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "本地演示一次播放和录音",
	Long:  `在进程内创建项目和模拟音频引擎，播放一段测试音频后录音，并打印每一步的传输状态和轨道。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if err := initLogger(cfg); err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		registry := project.NewRegistry(ctx, project.Options{
			Engine: engine.NewSimEngine(engine.DefaultConfig()),
			Prefs:  config.NewPreferences(cfg.Transport),
		})
		defer registry.Wait()
		defer cancel()

		p := registry.Create("session")
		if err := p.Do(ctx, func(*transport.Manager) error {
			_, err := p.AddTracks(model.CreateTrackRequest{Kind: model.TrackKindWave, Duration: sessionTrackSeconds, Selected: true})
			return err
		}); err != nil {
			return err
		}

		step := func(name string, fn func(m *transport.Manager) error) error {
			if err := p.Do(ctx, fn); err != nil {
				return fmt.Errorf("%s失败: %w", name, err)
			}
			printSnapshot(name, p.Transport().Snapshot())
			return nil
		}

		if err := step("播放", func(m *transport.Manager) error { return m.PlayCurrentRegion(false, false) }); err != nil {
			return err
		}
		time.Sleep(time.Duration(sessionPlaySeconds * float64(time.Second)))
		if err := step("停止", func(m *transport.Manager) error { return m.Stop(true) }); err != nil {
			return err
		}

		// altAppearance 与 PreferNewTrackRecord 相同时追加
		alt := cfg.Transport.PreferNewTrackRecord
		if !sessionAppend {
			alt = !alt
		}
		if err := step("录音", func(m *transport.Manager) error { return m.OnRecord(alt) }); err != nil {
			return err
		}
		time.Sleep(time.Duration(sessionRecSeconds * float64(time.Second)))
		if err := step("停止录音", func(m *transport.Manager) error { return m.Stop(true) }); err != nil {
			return err
		}

		fmt.Println("\n轨道:")
		for _, info := range p.Tracks().Infos() {
			fmt.Printf("  %-20s %-6s %8.3f - %8.3f  samples=%d\n", info.Name, info.Kind, info.Start, info.End, info.Samples)
		}
		desc, _ := p.History().Current()
		fmt.Printf("历史: %s (深度 %d)\n", desc, p.History().Depth())
		return nil
	},
}

func printSnapshot(step string, s model.TransportSnapshot) {
	fmt.Printf("[%s] token=%d playing=%v recording=%v paused=%v time=%.3f mode=%s\n",
		step, s.Token, s.Playing, s.Recording, s.Paused, s.StreamTime, s.LastPlayMode)
}

func init() {
	rootCmd.AddCommand(sessionCmd)

	sessionCmd.Flags().Float64Var(&sessionTrackSeconds, "track", 3, "测试音频轨的时长（秒）")
	sessionCmd.Flags().Float64Var(&sessionPlaySeconds, "play", 1, "播放时长（秒）")
	sessionCmd.Flags().Float64Var(&sessionRecSeconds, "record", 1, "录音时长（秒）")
	sessionCmd.Flags().BoolVar(&sessionAppend, "append", false, "追加到现有轨道而不是新建轨道")
}
