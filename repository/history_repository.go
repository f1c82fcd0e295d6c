package repository

import (
	"context"

	"AudioDeck/model"

	"gorm.io/gorm"
)

// HistoryRepository 撤销历史的数据访问接口
type HistoryRepository interface {
	Append(ctx context.Context, record *model.HistoryRecord) error
	ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*model.HistoryRecord, error)
	CountByProject(ctx context.Context, projectID string) (int64, error)
	DeleteByProject(ctx context.Context, projectID string) error
}

// gormHistoryRepository GORM 实现
type gormHistoryRepository struct {
	db *gorm.DB
}

// NewGormHistoryRepository 创建 GORM 历史仓库
func NewGormHistoryRepository(db *gorm.DB) HistoryRepository {
	return &gormHistoryRepository{db: db}
}

// Append 追加一条历史记录
func (r *gormHistoryRepository) Append(ctx context.Context, record *model.HistoryRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// ListByProject 按序号倒序列出项目的历史记录
func (r *gormHistoryRepository) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*model.HistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []*model.HistoryRecord
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("seq DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	return records, err
}

// CountByProject 项目历史记录数
func (r *gormHistoryRepository) CountByProject(ctx context.Context, projectID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.HistoryRecord{}).
		Where("project_id = ?", projectID).
		Count(&count).Error
	return count, err
}

// DeleteByProject 删除项目的全部历史记录
func (r *gormHistoryRepository) DeleteByProject(ctx context.Context, projectID string) error {
	return r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Delete(&model.HistoryRecord{}).Error
}
