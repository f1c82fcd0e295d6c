package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"AudioDeck/logger"
	"AudioDeck/model"

	"github.com/minio/minio-go/v7"
	"github.com/prometheus/client_golang/prometheus"
)

var autoSaveUploads = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "audiodeck",
	Subsystem: "storage",
	Name:      "autosave_uploads_total",
	Help:      "Autosave snapshot uploads by result.",
}, []string{"result"})

var registerOnce sync.Once

// RegisterMetrics 注册存储层指标
func RegisterMetrics(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(autoSaveUploads)
	})
}

// ObjectPutter 上传对象；*minio.Client 满足该接口
type ObjectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64,
		opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type autoSaveJob struct {
	projectID string
	reason    string
	snapshot  model.ProjectSnapshot
	at        time.Time
}

// AutoSaveStore 把项目快照异步上传到 MinIO
// RequestAutoSave 从不阻塞，队列满时丢弃请求
type AutoSaveStore struct {
	putter  ObjectPutter
	bucket  string
	timeout time.Duration
	queue   chan autoSaveJob
	wg      sync.WaitGroup
}

// NewAutoSaveStore 创建自动保存存储，queueSize 为等待上传的最大请求数
func NewAutoSaveStore(putter ObjectPutter, bucket string, queueSize int) *AutoSaveStore {
	if queueSize <= 0 {
		queueSize = 32
	}
	return &AutoSaveStore{
		putter:  putter,
		bucket:  bucket,
		timeout: 10 * time.Second,
		queue:   make(chan autoSaveJob, queueSize),
	}
}

// AutoSaveObjectName 快照的对象名
func AutoSaveObjectName(projectID, reason string, at time.Time) string {
	return fmt.Sprintf("autosave/%s/%s-%d.json", projectID, reason, at.UnixMilli())
}

// Start 启动上传 goroutine，ctx 结束后处理完已入队的请求再退出
func (s *AutoSaveStore) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case job := <-s.queue:
				s.upload(job)
			case <-ctx.Done():
				for {
					select {
					case job := <-s.queue:
						s.upload(job)
					default:
						return
					}
				}
			}
		}
	}()
}

// Wait 等待上传 goroutine 退出
func (s *AutoSaveStore) Wait() {
	s.wg.Wait()
}

// RequestAutoSave 请求保存快照
func (s *AutoSaveStore) RequestAutoSave(projectID, reason string, snapshot model.ProjectSnapshot) {
	job := autoSaveJob{projectID: projectID, reason: reason, snapshot: snapshot, at: time.Now()}
	select {
	case s.queue <- job:
	default:
		autoSaveUploads.WithLabelValues("dropped").Inc()
		logger.Warn("自动保存队列已满，丢弃请求",
			logger.String("projectId", projectID),
			logger.String("reason", reason))
	}
}

func (s *AutoSaveStore) upload(job autoSaveJob) {
	data, err := json.Marshal(job.snapshot)
	if err != nil {
		autoSaveUploads.WithLabelValues("error").Inc()
		logger.Error("序列化项目快照失败", logger.String("projectId", job.projectID), logger.ErrorField(err))
		return
	}

	name := AutoSaveObjectName(job.projectID, job.reason, job.at)
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err = s.putter.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		autoSaveUploads.WithLabelValues("error").Inc()
		logger.Warn("上传自动保存快照失败",
			logger.String("projectId", job.projectID),
			logger.String("object", name),
			logger.ErrorField(err))
		return
	}

	autoSaveUploads.WithLabelValues("ok").Inc()
	logger.Debug("自动保存快照已上传",
		logger.String("projectId", job.projectID),
		logger.String("object", name),
		logger.Int("size", len(data)))
}

// NopAutoSaver 丢弃所有自动保存请求
type NopAutoSaver struct{}

func (NopAutoSaver) RequestAutoSave(string, string, model.ProjectSnapshot) {}
