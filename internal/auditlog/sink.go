package auditlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"esadad-service/internal/models"
)

// MessageOrphanedOutcome marks an entry holding a gateway outcome that the
// ledger failed to store.
const MessageOrphanedOutcome = "Failed to record transaction outcome"

// Context is the structured payload attached to an entry. The "request" and
// "response" keys are lifted into their own snapshot columns.
type Context map[string]interface{}

// Sink records audit events. Implementations never return errors and never
// panic into the caller; internal failures go to a fallback channel.
type Sink interface {
	Info(ctx context.Context, service, message string, fields Context, transactionID *uint)
	Error(ctx context.Context, service, message string, fields Context, transactionID *uint)
}

type GormSink struct {
	DB       *gorm.DB
	table    string
	channel  string
	fallback logrus.FieldLogger
}

func NewGormSink(db *gorm.DB, table, channel string, fallback logrus.FieldLogger) *GormSink {
	if table == "" {
		table = models.DefaultLogsTable
	}
	if fallback == nil {
		fallback = logrus.StandardLogger()
	}
	return &GormSink{DB: db, table: table, channel: channel, fallback: fallback}
}

func (s *GormSink) Info(ctx context.Context, service, message string, fields Context, transactionID *uint) {
	s.write(ctx, models.LevelInfo, service, message, fields, transactionID)
}

func (s *GormSink) Error(ctx context.Context, service, message string, fields Context, transactionID *uint) {
	s.write(ctx, models.LevelError, service, message, fields, transactionID)
}

func (s *GormSink) write(ctx context.Context, level, service, message string, fields Context, transactionID *uint) {
	entry := s.fallback.WithFields(logrus.Fields{
		"channel": s.channel,
		"service": service,
	})
	if transactionID != nil {
		entry = entry.WithField("transaction_id", *transactionID)
	}
	if level == models.LevelError {
		entry.WithField("context", fields).Error(message)
	} else {
		entry.Info(message)
	}

	defer func() {
		if r := recover(); r != nil {
			entry.WithField("panic", r).Error("Failed to write eSADAD log entry")
		}
	}()

	record := models.LogEntry{
		TransactionID: transactionID,
		Level:         level,
		Message:       message,
		Service:       service,
		Context:       contextWithoutSnapshots(fields),
		RequestData:   toJSONMap(fields["request"]),
		ResponseData:  toJSONMap(fields["response"]),
	}
	if err := s.DB.WithContext(ctx).Table(s.table).Create(&record).Error; err != nil {
		entry.WithError(err).Error("Failed to write eSADAD log entry")
	}
}

func contextWithoutSnapshots(fields Context) datatypes.JSONMap {
	if len(fields) == 0 {
		return nil
	}
	out := datatypes.JSONMap{}
	for k, v := range fields {
		if k == "request" || k == "response" {
			continue
		}
		out[k] = v
	}
	return out
}

// toJSONMap normalises an arbitrary value into a JSON object column value.
func toJSONMap(v interface{}) datatypes.JSONMap {
	switch val := v.(type) {
	case nil:
		return nil
	case datatypes.JSONMap:
		return val
	case map[string]interface{}:
		return datatypes.JSONMap(val)
	case Context:
		return datatypes.JSONMap(val)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSONMap{"value": fmt.Sprintf("%v", v)}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		var scalar interface{}
		_ = json.Unmarshal(raw, &scalar)
		return datatypes.JSONMap{"value": scalar}
	}
	return datatypes.JSONMap(m)
}

// OrphanedTransactionIDs lists transactions whose outcome reached the gateway
// but could not be written to the ledger.
func (s *GormSink) OrphanedTransactionIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := s.DB.WithContext(ctx).Table(s.table).
		Where("message = ? AND transaction_id IS NOT NULL", MessageOrphanedOutcome).
		Distinct().
		Pluck("transaction_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query orphaned outcomes: %w", err)
	}
	return ids, nil
}

// ByLevel returns entries at the given level, newest first.
func (s *GormSink) ByLevel(ctx context.Context, level string, limit int) ([]models.LogEntry, error) {
	return s.find(s.DB.WithContext(ctx).Table(s.table).Where("level = ?", level), limit)
}

// ByService returns entries for one operation or subsystem, newest first.
func (s *GormSink) ByService(ctx context.Context, service string, limit int) ([]models.LogEntry, error) {
	return s.find(s.DB.WithContext(ctx).Table(s.table).Where("service = ?", service), limit)
}

func (s *GormSink) ForTransaction(ctx context.Context, transactionID uint) ([]models.LogEntry, error) {
	return s.find(s.DB.WithContext(ctx).Table(s.table).Where("transaction_id = ?", transactionID), 0)
}

func (s *GormSink) find(q *gorm.DB, limit int) ([]models.LogEntry, error) {
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []models.LogEntry
	if err := q.Order("id desc").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to query log entries: %w", err)
	}
	return entries, nil
}
