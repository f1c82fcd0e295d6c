package transport

import (
	"strconv"
	"strings"
	"time"

	"AudioDeck/config"
	"AudioDeck/model"
)

// ChooseExistingRecordingTracks 选出声道数之和恰好等于 recordingChannels 的现有音频轨
//
// 一到两个声道时使用严格规则：按列表顺序找第一段连续的轨道组，声道数之和必须正好相等，
// 单个轨道组声道数超出时整段作废重新开始，累加超出时从最早的组开始丢弃。
// 超过两个声道时只在选中轨道中选择，按顺序累加到足够为止，不要求正好相等。
// 找不到时返回空。
func ChooseExistingRecordingTracks(store TrackStore, recordingChannels int, selectedOnly bool) []*model.Track {
	strict := recordingChannels <= 2
	if !strict && !selectedOnly {
		return nil
	}

	var (
		channelCounts []int
		candidates    []*model.Track
	)
	for _, leader := range store.Leaders(model.TrackKindWave) {
		if selectedOnly && !leader.Selected {
			continue
		}
		channels := store.Channels(leader)
		n := len(channels)

		if strict && n > recordingChannels {
			// 录音填不满这个轨道，之前累积的也不能用
			candidates = nil
			channelCounts = nil
			continue
		}

		for strict && n+len(candidates) > recordingChannels {
			oldest := channelCounts[0]
			channelCounts = channelCounts[1:]
			candidates = candidates[oldest:]
		}
		channelCounts = append(channelCounts, n)
		for _, ch := range channels {
			candidates = append(candidates, ch)
			if len(candidates) == recordingChannels {
				return candidates
			}
		}
	}

	if !strict && len(candidates) > 0 {
		return candidates
	}
	return nil
}

// RecordingTrackName 新录音轨道的名称
// ordinal 为轨道序号，时间戳中的 ":" 替换为 "-"
func RecordingTrackName(prefs config.TransportPrefs, ordinal int, now time.Time) string {
	base := prefs.DefaultTrackName
	if prefs.RecordingNameCustom {
		base = prefs.RecordingTrackName
	}

	var parts []string
	if prefs.TrackNameUseNumber {
		parts = append(parts, strconv.Itoa(ordinal))
	}
	if prefs.TrackNameUseDateStamp {
		parts = append(parts, now.Format("2006-01-02"))
	}
	if prefs.TrackNameUseTimeStamp {
		parts = append(parts, now.Format("15:04:05"))
	}
	suffix := strings.ReplaceAll(strings.Join(parts, "_"), ":", "-")

	switch {
	case base == "":
		return suffix
	case suffix == "":
		return base
	default:
		return base + "_" + suffix
	}
}
