package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	StatusInitiated = "initiated"
	StatusRequested = "requested"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Payment statuses accepted by the confirm operation.
const (
	PaymentStatusNew    = "PmtNew"
	PaymentStatusCancel = "PmtCanc"
)

const (
	SuccessCode   = "000"
	ExceptionCode = "EXCEPTION"
)

const DefaultTransactionsTable = "esadad_transactions"

type Transaction struct {
	ID               uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	MerchantCode     string            `gorm:"column:merchant_code;size:255;not null" json:"merchant_code"`
	TokenKey         *string           `gorm:"column:token_key;size:255" json:"-"`
	CustomerID       string            `gorm:"column:customer_id;size:255;not null;default:'';index" json:"customer_id"`
	InvoiceID        string            `gorm:"column:invoice_id;size:255;index" json:"invoice_id"`
	BankTrxID        *string           `gorm:"column:bank_trx_id;size:255;index:idx_esadad_trx_pair" json:"bank_trx_id"`
	GatewayTrxID     *string           `gorm:"column:gateway_trx_id;size:255;index:idx_esadad_trx_pair" json:"gateway_trx_id"`
	Amount           decimal.Decimal   `gorm:"column:amount;type:decimal(10,2);not null;default:0" json:"amount"`
	Currency         string            `gorm:"column:currency;size:10;not null;default:'886'" json:"currency"`
	ProcessDate      *time.Time        `gorm:"column:process_date" json:"process_date"`
	StmtDate         *time.Time        `gorm:"column:stmt_date" json:"stmt_date"`
	Status           string            `gorm:"column:status;size:20;not null;default:initiated;index" json:"status"`
	PaymentStatus    *string           `gorm:"column:payment_status;size:20" json:"payment_status"`
	ErrorCode        *string           `gorm:"column:error_code;size:20;index" json:"error_code"`
	ErrorDescription *string           `gorm:"column:error_description;type:text" json:"error_description"`
	RequestData      datatypes.JSONMap `gorm:"column:request_data" json:"request_data"`
	ResponseData     datatypes.JSONMap `gorm:"column:response_data" json:"response_data"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string {
	return DefaultTransactionsTable
}

// Successful reports whether the gateway accepted the call.
func (t Transaction) Successful() bool {
	return t.ErrorCode != nil && *t.ErrorCode == SuccessCode
}

var statusLabels = map[string]string{
	StatusInitiated: "تم البدء",
	StatusRequested: "تم الطلب",
	StatusConfirmed: "تم التأكيد",
	StatusFailed:    "فشلت",
	StatusCancelled: "ملغية",
}

// StatusLabel returns the display label for the lifecycle status.
func (t Transaction) StatusLabel() string {
	if label, ok := statusLabels[t.Status]; ok {
		return label
	}
	return t.Status
}

func ValidStatus(status string) bool {
	_, ok := statusLabels[status]
	return ok
}
