package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"esadad-service/internal/ledger"
	"esadad-service/internal/models"
	"esadad-service/pkg/common"
)

const staleSweepSchedule = "*/10 * * * *"

// LogQuerier reads audit entries back for display.
type LogQuerier interface {
	ForTransaction(ctx context.Context, transactionID uint) ([]models.LogEntry, error)
	OrphanedTransactionIDs(ctx context.Context) ([]uint, error)
}

type TransactionView struct {
	models.Transaction
	StatusLabel string            `json:"status_label"`
	Logs        []models.LogEntry `json:"logs,omitempty"`
}

func newView(t models.Transaction) TransactionView {
	return TransactionView{Transaction: t, StatusLabel: t.StatusLabel()}
}

func newViews(txns []models.Transaction) []TransactionView {
	views := make([]TransactionView, 0, len(txns))
	for _, t := range txns {
		views = append(views, newView(t))
	}
	return views
}

type TransactionService struct {
	ledger     ledger.Store
	logs       LogQuerier
	staleAfter time.Duration
	log        logrus.FieldLogger
	now        func() time.Time
}

func NewTransactionService(store ledger.Store, logs LogQuerier, staleAfter time.Duration, log logrus.FieldLogger) *TransactionService {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TransactionService{
		ledger:     store,
		logs:       logs,
		staleAfter: staleAfter,
		log:        log.WithField("component", "esadad_transactions"),
		now:        time.Now,
	}
}

func (s *TransactionService) List(ctx context.Context, filter ledger.Filter) (common.PaginationResult, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 15
	}
	txns, total, err := s.ledger.List(ctx, filter)
	if err != nil {
		return common.PaginationResult{}, err
	}
	return common.PaginateResponse(newViews(txns), total, filter.Page, filter.Limit, ""), nil
}

// Find returns the transaction with its audit trail.
func (s *TransactionService) Find(ctx context.Context, id uint) (*TransactionView, error) {
	txn, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := newView(*txn)
	if s.logs != nil {
		logs, err := s.logs.ForTransaction(ctx, id)
		if err != nil {
			s.log.WithError(err).WithField("transaction_id", id).Warn("Failed to load transaction logs")
		}
		view.Logs = logs
	}
	return &view, nil
}

func (s *TransactionService) FindByInvoiceID(ctx context.Context, invoiceID string) (*TransactionView, error) {
	txn, err := s.ledger.FindByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	view := newView(*txn)
	return &view, nil
}

func (s *TransactionService) FindByCustomerID(ctx context.Context, customerID string) ([]TransactionView, error) {
	txns, err := s.ledger.FindByCustomerID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return newViews(txns), nil
}

func (s *TransactionService) Successful(ctx context.Context) ([]TransactionView, error) {
	txns, err := s.ledger.Successful(ctx)
	if err != nil {
		return nil, err
	}
	return newViews(txns), nil
}

func (s *TransactionService) Failed(ctx context.Context) ([]TransactionView, error) {
	txns, err := s.ledger.Failed(ctx)
	if err != nil {
		return nil, err
	}
	return newViews(txns), nil
}

// CancelStaleTransactions marks initiated rows that never progressed as
// cancelled. Rows whose outcome is only in the audit log are skipped.
func (s *TransactionService) CancelStaleTransactions(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.staleAfter)
	var keep []uint
	if s.logs != nil {
		ids, err := s.logs.OrphanedTransactionIDs(ctx)
		if err != nil {
			return 0, err
		}
		keep = ids
	}
	if len(keep) > 0 {
		s.log.WithField("transaction_ids", keep).Warn("Skipping eSADAD transactions with unrecorded outcomes")
	}
	n, err := s.ledger.CancelStale(ctx, cutoff, keep)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.WithFields(logrus.Fields{"count": n, "cutoff": cutoff}).Info("Cancelled stale eSADAD transactions")
	}
	return n, nil
}

// StartScheduler runs the stale transaction sweep every ten minutes.
func (s *TransactionService) StartScheduler() *cron.Cron {
	c := cron.New()
	_, err := c.AddFunc(staleSweepSchedule, func() {
		if _, err := s.CancelStaleTransactions(context.Background()); err != nil {
			s.log.WithError(err).Error("Stale transaction sweep failed")
		}
	})
	if err != nil {
		s.log.WithError(err).Error("Error scheduling stale transaction sweep")
		return nil
	}
	c.Start()
	s.log.Info("Stale transaction scheduler started (every 10 minutes)")
	return c
}
