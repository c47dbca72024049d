package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// CallRecordStatus 通话记录状态
type CallRecordStatus string

const (
	CallRecordStatusInitiated  CallRecordStatus = "initiated"
	CallRecordStatusRinging    CallRecordStatus = "ringing"
	CallRecordStatusInProgress CallRecordStatus = "in-progress"
	CallRecordStatusCompleted  CallRecordStatus = "completed"
	CallRecordStatusFailed     CallRecordStatus = "failed"
)

// TranscriptEntry 通话记录中的一条对话内容
type TranscriptEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// CallRecord 通话记录表，核心对外可见的唯一持久化状态
type CallRecord struct {
	ID        string         `json:"id" gorm:"primaryKey;size:64"`
	CreatedAt time.Time      `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updatedAt" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Status      CallRecordStatus `json:"status" gorm:"size:20;index"`
	StartedAt   time.Time        `json:"startedAt"`
	EndedAt     *time.Time       `json:"endedAt,omitempty"`
	EndedReason string           `json:"endedReason,omitempty" gorm:"size:32"`

	TranscriptJSON string `json:"-" gorm:"column:transcript;type:text"`

	RecordingURL    string `json:"recordingUrl,omitempty" gorm:"size:512"`
	DurationSeconds int    `json:"durationSeconds"`

	AgentID        string `json:"agentId" gorm:"size:64;index"`
	CustomerNumber string `json:"customerNumber" gorm:"size:32;index"`
}

// TableName 指定表名
func (CallRecord) TableName() string {
	return "call_records"
}

// Transcript 反序列化存储的对话记录
func (c *CallRecord) Transcript() ([]TranscriptEntry, error) {
	if c.TranscriptJSON == "" {
		return nil, nil
	}
	var entries []TranscriptEntry
	if err := json.Unmarshal([]byte(c.TranscriptJSON), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SetTranscript 序列化并写入对话记录
func (c *CallRecord) SetTranscript(entries []TranscriptEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	c.TranscriptJSON = string(data)
	return nil
}

// CreateCallRecord 创建通话记录
func CreateCallRecord(db *gorm.DB, record *CallRecord) error {
	return db.Create(record).Error
}

// GetCallRecordByID 根据ID获取通话记录
func GetCallRecordByID(db *gorm.DB, id string) (*CallRecord, error) {
	var record CallRecord
	if err := db.Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateCallRecordStatus 更新通话记录状态
func UpdateCallRecordStatus(db *gorm.DB, id string, status CallRecordStatus) error {
	return db.Model(&CallRecord{}).Where("id = ?", id).Update("status", status).Error
}

// FinishCallRecord 写入通话结束时的最终字段
func FinishCallRecord(db *gorm.DB, id string, status CallRecordStatus, endedReason, recordingURL string, endedAt time.Time, durationSeconds int) error {
	return db.Model(&CallRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":           status,
		"ended_reason":     endedReason,
		"recording_url":    recordingURL,
		"ended_at":         endedAt,
		"duration_seconds": durationSeconds,
	}).Error
}
