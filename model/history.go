package model

import "time"

// 历史操作类型
const (
	HistoryKindPush     = "push"
	HistoryKindModify   = "modify"
	HistoryKindRollback = "rollback"
)

// HistoryRecord 撤销历史的持久化记录
type HistoryRecord struct {
	ID               int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	ProjectID        string    `json:"projectId" gorm:"size:36;index;not null"`
	Seq              int64     `json:"seq" gorm:"not null"`
	Kind             string    `json:"kind" gorm:"size:16;not null"` // push, modify, rollback
	Description      string    `json:"description" gorm:"size:255"`
	ShortDescription string    `json:"shortDescription" gorm:"size:64"`
	TrackCount       int       `json:"trackCount"`
	Depth            int       `json:"depth"`
	CreatedAt        time.Time `json:"createdAt"`
}

// TableName 指定表名
func (HistoryRecord) TableName() string {
	return "transport_history"
}
