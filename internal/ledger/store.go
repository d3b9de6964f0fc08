package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"esadad-service/internal/models"
)

var ErrNotFound = errors.New("transaction not found")

// Fields is a partial column update keyed by column name.
type Fields map[string]interface{}

type Filter struct {
	Status        string
	CustomerID    string
	InvoiceID     string
	BankTrxID     string
	GatewayTrxID  string
	From          *time.Time
	To            *time.Time
	SortField     string
	SortDirection string
	Page          int
	Limit         int
}

var sortable = map[string]bool{
	"id":           true,
	"created_at":   true,
	"updated_at":   true,
	"amount":       true,
	"process_date": true,
	"status":       true,
}

// Order returns a whitelisted ORDER BY clause, defaulting to created_at desc.
func (f Filter) Order() string {
	field := f.SortField
	if !sortable[field] {
		field = "created_at"
	}
	direction := strings.ToLower(f.SortDirection)
	if direction != "asc" {
		direction = "desc"
	}
	return field + " " + direction
}

func (f Filter) pagination() (page, limit int) {
	page, limit = f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 15
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

// Store is the transaction ledger. Rows are created and updated, never deleted.
type Store interface {
	Create(ctx context.Context, txn *models.Transaction) error
	Update(ctx context.Context, txn *models.Transaction, fields Fields) error
	FindByID(ctx context.Context, id uint) (*models.Transaction, error)
	FindByBankAndGatewayTrxID(ctx context.Context, bankTrxID, gatewayTrxID string) (*models.Transaction, error)
	FindByInvoiceID(ctx context.Context, invoiceID string) (*models.Transaction, error)
	FindByCustomerID(ctx context.Context, customerID string) ([]models.Transaction, error)
	List(ctx context.Context, filter Filter) ([]models.Transaction, int64, error)
	Successful(ctx context.Context) ([]models.Transaction, error)
	Failed(ctx context.Context) ([]models.Transaction, error)
	CancelStale(ctx context.Context, before time.Time, keep []uint) (int64, error)
}

type GormStore struct {
	DB    *gorm.DB
	table string
}

func NewGormStore(db *gorm.DB, table string) *GormStore {
	if table == "" {
		table = models.DefaultTransactionsTable
	}
	return &GormStore{DB: db, table: table}
}

func (s *GormStore) query(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx).Table(s.table)
}

func (s *GormStore) Create(ctx context.Context, txn *models.Transaction) error {
	if txn.Status == "" {
		txn.Status = models.StatusInitiated
	}
	if err := s.query(ctx).Create(txn).Error; err != nil {
		return errors.Wrap(err, "create transaction")
	}
	return nil
}

// Update applies fields to the row and mirrors them onto txn.
func (s *GormStore) Update(ctx context.Context, txn *models.Transaction, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}
	values := map[string]interface{}(fields)
	err := s.query(ctx).Model(&models.Transaction{}).Where("id = ?", txn.ID).Updates(values).Error
	if err != nil {
		return errors.Wrapf(err, "update transaction %d", txn.ID)
	}
	return errors.Wrapf(s.query(ctx).Where("id = ?", txn.ID).Take(txn).Error, "reload transaction %d", txn.ID)
}

func (s *GormStore) first(q *gorm.DB) (*models.Transaction, error) {
	var txn models.Transaction
	if err := q.First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "find transaction")
	}
	return &txn, nil
}

func (s *GormStore) FindByID(ctx context.Context, id uint) (*models.Transaction, error) {
	return s.first(s.query(ctx).Where("id = ?", id))
}

func (s *GormStore) FindByBankAndGatewayTrxID(ctx context.Context, bankTrxID, gatewayTrxID string) (*models.Transaction, error) {
	return s.first(s.query(ctx).
		Where("bank_trx_id = ? AND gateway_trx_id = ?", bankTrxID, gatewayTrxID).
		Order("id desc"))
}

// FindByInvoiceID returns the most recent row for the invoice.
func (s *GormStore) FindByInvoiceID(ctx context.Context, invoiceID string) (*models.Transaction, error) {
	return s.first(s.query(ctx).Where("invoice_id = ?", invoiceID).Order("id desc"))
}

func (s *GormStore) FindByCustomerID(ctx context.Context, customerID string) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := s.query(ctx).Where("customer_id = ?", customerID).Order("created_at desc").Find(&txns).Error
	return txns, errors.Wrap(err, "find transactions by customer")
}

func (s *GormStore) List(ctx context.Context, filter Filter) ([]models.Transaction, int64, error) {
	q := s.query(ctx)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.CustomerID != "" {
		q = q.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.InvoiceID != "" {
		q = q.Where("invoice_id = ?", filter.InvoiceID)
	}
	if filter.BankTrxID != "" {
		q = q.Where("bank_trx_id = ?", filter.BankTrxID)
	}
	if filter.GatewayTrxID != "" {
		q = q.Where("gateway_trx_id = ?", filter.GatewayTrxID)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at <= ?", *filter.To)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count transactions")
	}

	page, limit := filter.pagination()
	var txns []models.Transaction
	err := q.Order(filter.Order()).Offset((page - 1) * limit).Limit(limit).Find(&txns).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list transactions")
	}
	return txns, total, nil
}

func (s *GormStore) Successful(ctx context.Context) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := s.query(ctx).Where("error_code = ?", models.SuccessCode).Order("created_at desc").Find(&txns).Error
	return txns, errors.Wrap(err, "find successful transactions")
}

func (s *GormStore) Failed(ctx context.Context) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := s.query(ctx).Where("error_code <> ?", models.SuccessCode).Order("created_at desc").Find(&txns).Error
	return txns, errors.Wrap(err, "find failed transactions")
}

// CancelStale marks rows still initiated before the cutoff as cancelled. Rows
// listed in keep are left for reconciliation.
func (s *GormStore) CancelStale(ctx context.Context, before time.Time, keep []uint) (int64, error) {
	q := s.query(ctx).Model(&models.Transaction{}).
		Where("status = ? AND created_at < ?", models.StatusInitiated, before)
	if len(keep) > 0 {
		q = q.Where("id NOT IN ?", keep)
	}
	res := q.Updates(map[string]interface{}{"status": models.StatusCancelled})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "cancel stale transactions")
	}
	return res.RowsAffected, nil
}
