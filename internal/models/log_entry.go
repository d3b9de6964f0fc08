package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	LevelInfo  = "info"
	LevelError = "error"
)

const DefaultLogsTable = "esadad_logs"

// LogEntry is written once and never updated.
type LogEntry struct {
	ID            uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionID *uint             `gorm:"column:transaction_id;index" json:"transaction_id"`
	Level         string            `gorm:"column:level;size:20;not null;default:info;index" json:"level"`
	Message       string            `gorm:"column:message;type:text" json:"message"`
	Context       datatypes.JSONMap `gorm:"column:context" json:"context"`
	Service       string            `gorm:"column:service;size:100;index" json:"service"`
	RequestData   datatypes.JSONMap `gorm:"column:request_data" json:"request_data"`
	ResponseData  datatypes.JSONMap `gorm:"column:response_data" json:"response_data"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (LogEntry) TableName() string {
	return DefaultLogsTable
}
