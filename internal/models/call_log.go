package models

import (
	"time"

	"gorm.io/gorm"
)

// CallProvider 通话提供方
type CallProvider string

const (
	ProviderSoftphone CallProvider = "softphone" // 坐席软电话（主提供方）
	ProviderAIDialer  CallProvider = "ai-dialer" // AI 外呼（备用提供方）
)

// AnalysisStatus 分析任务状态（后端任务独立推进每个字段）
type AnalysisStatus string

const (
	AnalysisNotRequested AnalysisStatus = "not-requested"
	AnalysisPending      AnalysisStatus = "pending"
	AnalysisCompleted    AnalysisStatus = "completed"
	AnalysisFailed       AnalysisStatus = "failed"
)

// CallLogRecord 通话记录镜像模型。后端是记录的持有者；客户端只负责
// 创建草稿并提交一次，之后的字段变化（分析完成等）全部通过重新拉取
// 观察，绝不在本地修改。
type CallLogRecord struct {
	ID        string         `json:"id" gorm:"primaryKey;size:64"`
	LeadID    string         `json:"leadId" gorm:"size:64;index"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// 分类
	Direction string `json:"direction" gorm:"size:20;index"` // inbound | outbound
	Status    string `json:"status" gorm:"size:20;index"`    // completed | failed | missed | cancelled
	Channel   string `json:"channel" gorm:"size:20"`         // voice

	// 时间
	StartedAt       time.Time  `json:"startedAt"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	DurationSeconds int64      `json:"durationSeconds" gorm:"default:0"`

	// 号码与提供方关联
	FromNumber     string       `json:"from,omitempty" gorm:"size:32"`
	ToNumber       string       `json:"to,omitempty" gorm:"size:32"`
	ProviderCallID *string      `json:"providerCallId,omitempty" gorm:"size:128;index"`
	Provider       CallProvider `json:"provider,omitempty" gorm:"size:20;index"` // 显式提供方标记

	// 分析字段（状态 + 对应的值，值仅在 completed 后有效）
	TranscriptionStatus        AnalysisStatus `json:"transcriptionStatus" gorm:"size:20"`
	TranscriptionText          string         `json:"transcriptionText,omitempty" gorm:"type:text"`
	LeadSuccessScoreStatus     AnalysisStatus `json:"leadSuccessScoreStatus" gorm:"size:20"`
	LeadSuccessScore           *float64       `json:"leadSuccessScore,omitempty"`
	FollowupSuggestionStatus   AnalysisStatus `json:"followupSuggestionStatus" gorm:"size:20"`
	FollowupSuggestionSummary  string         `json:"followupSuggestionSummary,omitempty" gorm:"type:text"`
	FollowupSuggestionMetadata string         `json:"followupSuggestionMetadata,omitempty" gorm:"type:text"` // JSON

	// 提供方各自的录音指针，同一条记录最多只有一个有意义
	RecordingSID   *string `json:"recordingSid,omitempty" gorm:"size:128"`  // 主提供方
	AIRecordingURL *string `json:"aiRecordingUrl,omitempty" gorm:"size:500"` // 备用提供方
}

// TableName 指定表名
func (CallLogRecord) TableName() string {
	return "call_log_records"
}

// ResolveProvider returns the provider that handled the call. The explicit
// tag wins; field-presence inference remains only as tolerance for legacy
// records written before the tag existed.
func (r *CallLogRecord) ResolveProvider() CallProvider {
	if r.Provider != "" {
		return r.Provider
	}
	if r.AIRecordingURL != nil && *r.AIRecordingURL != "" {
		return ProviderAIDialer
	}
	return ProviderSoftphone
}

// AnalysisPending reports whether any analysis field is still pending, or —
// for AI-dialer records — effectively pending because the fields still sit
// at their not-requested defaults with no transcript produced.
func (r *CallLogRecord) AnalysisPending() bool {
	statuses := []AnalysisStatus{
		r.TranscriptionStatus,
		r.LeadSuccessScoreStatus,
		r.FollowupSuggestionStatus,
	}
	for _, s := range statuses {
		if s == AnalysisPending {
			return true
		}
	}
	if r.ResolveProvider() == ProviderAIDialer && r.TranscriptionText == "" {
		for _, s := range statuses {
			if s == "" || s == AnalysisNotRequested {
				return true
			}
		}
	}
	return false
}

// UpsertCallLogs mirrors backend records into the local table, replacing
// rows by backend id.
func UpsertCallLogs(db *gorm.DB, records []CallLogRecord) error {
	for i := range records {
		if err := db.Save(&records[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

// GetCallLogsByLeadID 根据线索ID获取本地镜像的通话记录列表
func GetCallLogsByLeadID(db *gorm.DB, leadID string, limit int) ([]CallLogRecord, error) {
	var records []CallLogRecord
	query := db.Where("lead_id = ?", leadID).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&records).Error
	return records, err
}

// GetCallLogByID 根据ID获取单条通话记录
func GetCallLogByID(db *gorm.DB, id string) (*CallLogRecord, error) {
	var record CallLogRecord
	if err := db.Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}
