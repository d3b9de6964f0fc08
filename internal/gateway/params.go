package gateway

import (
	"github.com/shopspring/decimal"
)

// RedactedPlaceholder replaces customer secrets in anything persisted or logged.
const RedactedPlaceholder = "[ENCRYPTED]"

// Field is a single named SOAP argument. Value is a string or nested Params.
type Field struct {
	Name  string
	Value interface{}
}

// Params keeps argument order, which SOAP endpoints are sensitive to.
type Params []Field

func (p Params) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(p))
	for _, f := range p {
		if nested, ok := f.Value.(Params); ok {
			out[f.Name] = nested.Map()
			continue
		}
		out[f.Name] = f.Value
	}
	return out
}

type InitiationRecord struct {
	SepOnlineNo string
	Password    string
}

func (r InitiationRecord) Params() Params {
	return Params{
		{"sepOnlineNo", r.SepOnlineNo},
		{"password", r.Password},
	}
}

type PaymentRecord struct {
	SepOnlineNo string
	OTP         string
	InvoiceID   string
	ProcessDate string
	TrxAmount   decimal.Decimal
	Currency    string
}

func (r PaymentRecord) Params() Params {
	return Params{
		{"sepOnlineNo", r.SepOnlineNo},
		{"otp", r.OTP},
		{"invoiceId", r.InvoiceID},
		{"processDate", r.ProcessDate},
		{"trxAmount", r.TrxAmount.StringFixed(2)},
		{"currency", r.Currency},
	}
}

type ConfirmationRecord struct {
	SepOnlineNo  string
	BankTrxID    string
	GatewayTrxID string
	InvoiceID    string
	PmtStatus    string
	StmtDate     string
	ProcessDate  string
	TrxAmount    decimal.Decimal
	Currency     string
}

func (r ConfirmationRecord) Params() Params {
	return Params{
		{"sepOnlineNo", r.SepOnlineNo},
		{"bankTrxId", r.BankTrxID},
		{"sepTrxId", r.GatewayTrxID},
		{"invoiceId", r.InvoiceID},
		{"pmtStatus", r.PmtStatus},
		{"stmtDate", r.StmtDate},
		{"processDate", r.ProcessDate},
		{"trxAmount", r.TrxAmount.StringFixed(2)},
		{"currency", r.Currency},
	}
}

func AuthenticationParams(merchantCode, password string) Params {
	return Params{
		{"merchantCode", merchantCode},
		{"password", password},
	}
}

// OperationParams wraps a transaction record with the merchant credentials.
func OperationParams(merchantCode, tokenKey string, transRec Params) Params {
	return Params{
		{"merchantCode", merchantCode},
		{"tokenKey", tokenKey},
		{"transRec", transRec},
	}
}
