package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"esadad-service/internal/auditlog"
	"esadad-service/internal/events"
	"esadad-service/internal/gateway"
	"esadad-service/internal/ledger"
	"esadad-service/internal/models"
)

const hiddenPlaceholder = "[HIDDEN]"

// Gateway is the remote operation dispatcher.
type Gateway interface {
	Authenticate(ctx context.Context, merchantCode, password string) (*gateway.Response, error)
	InitiatePayment(ctx context.Context, merchantCode, tokenKey string, rec gateway.InitiationRecord) (*gateway.Response, error)
	RequestPayment(ctx context.Context, merchantCode, tokenKey string, rec gateway.PaymentRecord) (*gateway.Response, error)
	ConfirmPayment(ctx context.Context, merchantCode, tokenKey string, rec gateway.ConfirmationRecord) (*gateway.Response, error)
}

type Encryptor interface {
	Encrypt(plaintext string) (string, error)
}

type Merchant struct {
	Code     string
	Password string
	Currency string
}

// TokenSource selects between a caller-supplied token and the token cache.
type TokenSource struct {
	key string
}

// ExplicitToken uses key as-is. An empty key behaves like ResolveFromCache.
func ExplicitToken(key string) TokenSource { return TokenSource{key: key} }

func ResolveFromCache() TokenSource { return TokenSource{} }

func (t TokenSource) Explicit() bool { return t.key != "" }

// ValidationError rejects a call before any token lookup or ledger write.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return fmt.Sprintf("invalid request: %v", e.Err) }

func (e *ValidationError) Unwrap() error { return e.Err }

type InitiatePaymentRequest struct {
	CustomerID       string      `json:"customer_id" validate:"required"`
	CustomerPassword string      `json:"customer_password" validate:"required"`
	Token            TokenSource `json:"-"`
}

type PaymentRequest struct {
	CustomerID string          `json:"customer_id" validate:"required"`
	OTP        string          `json:"otp" validate:"required"`
	InvoiceID  string          `json:"invoice_id" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Token      TokenSource     `json:"-"`
}

// TransactionDetails identifies a requested payment for confirmation.
type TransactionDetails struct {
	BankTrxID    string `json:"bank_trx_id" validate:"required"`
	GatewayTrxID string `json:"gateway_trx_id" validate:"required"`
	InvoiceID    string `json:"invoice_id"`
	StmtDate     string `json:"stmt_date"`
}

type ConfirmPaymentRequest struct {
	CustomerID    string             `json:"customer_id" validate:"required"`
	Details       TransactionDetails `json:"transaction_details"`
	Amount        decimal.Decimal    `json:"amount"`
	Currency      string             `json:"currency"`
	PaymentStatus string             `json:"payment_status" validate:"omitempty,oneof=PmtNew PmtCanc"`
	Token         TokenSource        `json:"-"`
}

// GatewayService runs the four gateway operations, recording each call in the
// ledger and the audit log. Business failures come back as a Response with a
// non-success ErrorCode; only transport, encryption and validation failures
// are returned as errors.
type GatewayService struct {
	merchant  Merchant
	gateway   Gateway
	ledger    ledger.Store
	audit     auditlog.Sink
	encryptor Encryptor
	events    events.Publisher
	tokens    *TokenCache
	validate  *validator.Validate
	location  *time.Location
	now       func() time.Time
	log       logrus.FieldLogger
}

func NewGatewayService(
	merchant Merchant,
	gw Gateway,
	store ledger.Store,
	audit auditlog.Sink,
	encryptor Encryptor,
	publisher events.Publisher,
	location *time.Location,
	log logrus.FieldLogger,
) *GatewayService {
	if merchant.Currency == "" {
		merchant.Currency = "886"
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if location == nil {
		location = time.Local
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &GatewayService{
		merchant:  merchant,
		gateway:   gw,
		ledger:    store,
		audit:     audit,
		encryptor: encryptor,
		events:    publisher,
		validate:  validator.New(),
		location:  location,
		now:       time.Now,
		log:       log.WithField("component", "esadad_gateway"),
	}
	s.tokens = NewTokenCache(merchant.Code, s.Authenticate, audit, location)
	return s
}

// Token returns a valid token, from the cache unless forceNew is set.
func (s *GatewayService) Token(ctx context.Context, forceNew bool) (*gateway.Response, error) {
	return s.tokens.Get(ctx, forceNew)
}

func (s *GatewayService) Tokens() *TokenCache { return s.tokens }

func (s *GatewayService) Authenticate(ctx context.Context) (*gateway.Response, error) {
	op := gateway.Authentication
	request := gateway.AuthenticationParams(s.merchant.Code, hiddenPlaceholder).Map()

	txn, err := s.open(ctx, op, &models.Transaction{RequestData: request})
	if err != nil {
		return nil, err
	}
	s.audit.Info(ctx, op.String(), "Authentication request", auditlog.Context{
		"transaction_id": txn.ID,
		"request":        request,
	}, &txn.ID)

	resp, err := s.gateway.Authenticate(ctx, s.merchant.Code, s.merchant.Password)
	if err != nil {
		return nil, s.fail(ctx, op, txn, "Authentication", err, nil)
	}

	fields := outcome(resp, models.StatusConfirmed)
	fields["token_key"] = nullable(resp.TokenKey)
	s.finish(ctx, op, txn, "Authentication response", resp, fields)
	return resp, nil
}

func (s *GatewayService) InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*gateway.Response, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	token, failure, err := s.resolveToken(ctx, req.Token)
	if failure != nil || err != nil {
		return failure, err
	}

	op := gateway.PaymentInitiation
	redacted := gateway.InitiationRecord{SepOnlineNo: req.CustomerID, Password: gateway.RedactedPlaceholder}
	request := gateway.OperationParams(s.merchant.Code, token, redacted.Params()).Map()

	txn, err := s.open(ctx, op, &models.Transaction{
		TokenKey:    &token,
		CustomerID:  req.CustomerID,
		RequestData: request,
	})
	if err != nil {
		return nil, err
	}

	password, err := s.encryptor.Encrypt(req.CustomerPassword)
	if err != nil {
		return nil, s.fail(ctx, op, txn, "Payment initiation", err, nil)
	}
	s.audit.Info(ctx, op.String(), "Payment initiation request", auditlog.Context{
		"transaction_id": txn.ID,
		"request":        request,
	}, &txn.ID)

	resp, err := s.gateway.InitiatePayment(ctx, s.merchant.Code, token, gateway.InitiationRecord{
		SepOnlineNo: req.CustomerID,
		Password:    password,
	})
	if err != nil {
		return nil, s.fail(ctx, op, txn, "Payment initiation", err, nil)
	}

	s.finish(ctx, op, txn, "Payment initiation response", resp, outcome(resp, models.StatusRequested))
	return resp, nil
}

func (s *GatewayService) RequestPayment(ctx context.Context, req PaymentRequest) (*gateway.Response, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, &ValidationError{Err: errors.New("amount must be greater than zero")}
	}
	token, failure, err := s.resolveToken(ctx, req.Token)
	if failure != nil || err != nil {
		return failure, err
	}

	op := gateway.PaymentRequest
	currency := s.currency(req.Currency)
	record := gateway.PaymentRecord{
		SepOnlineNo: req.CustomerID,
		OTP:         gateway.RedactedPlaceholder,
		InvoiceID:   req.InvoiceID,
		ProcessDate: s.now().In(s.location).Format(gatewayTimeLayout),
		TrxAmount:   req.Amount,
		Currency:    currency,
	}
	request := gateway.OperationParams(s.merchant.Code, token, record.Params()).Map()

	txn, err := s.open(ctx, op, &models.Transaction{
		TokenKey:    &token,
		CustomerID:  req.CustomerID,
		InvoiceID:   req.InvoiceID,
		Amount:      req.Amount,
		Currency:    currency,
		RequestData: request,
	})
	if err != nil {
		return nil, err
	}

	otp, err := s.encryptor.Encrypt(req.OTP)
	if err != nil {
		return nil, s.fail(ctx, op, txn, "Payment request", err, nil)
	}
	s.audit.Info(ctx, op.String(), "Payment request", auditlog.Context{
		"transaction_id": txn.ID,
		"request":        request,
	}, &txn.ID)

	record.OTP = otp
	resp, err := s.gateway.RequestPayment(ctx, s.merchant.Code, token, record)
	if err != nil {
		return nil, s.fail(ctx, op, txn, "Payment request", err, nil)
	}

	fields := outcome(resp, models.StatusRequested)
	if resp.Successful() {
		fields["bank_trx_id"] = nullable(resp.BankTrxID)
		fields["gateway_trx_id"] = nullable(resp.GatewayTrxID)
		fields["stmt_date"] = s.parseGatewayTime(resp.StmtDate)
	}
	s.finish(ctx, op, txn, "Payment request response", resp, fields)
	return resp, nil
}

func (s *GatewayService) ConfirmPayment(ctx context.Context, req ConfirmPaymentRequest) (*gateway.Response, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	token, failure, err := s.resolveToken(ctx, req.Token)
	if failure != nil || err != nil {
		return failure, err
	}

	op := gateway.PaymentConfirm
	currency := s.currency(req.Currency)
	paymentStatus := req.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = models.PaymentStatusNew
	}
	d := req.Details

	txn, err := s.ledger.FindByBankAndGatewayTrxID(ctx, d.BankTrxID, d.GatewayTrxID)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		txn, err = s.open(ctx, op, &models.Transaction{
			TokenKey:     &token,
			CustomerID:   req.CustomerID,
			InvoiceID:    d.InvoiceID,
			BankTrxID:    &d.BankTrxID,
			GatewayTrxID: &d.GatewayTrxID,
			Amount:       req.Amount,
			Currency:     currency,
			Status:       models.StatusRequested,
			StmtDate:     s.parseGatewayTime(d.StmtDate),
		})
		if err != nil {
			return nil, err
		}
	case err != nil:
		s.audit.Error(ctx, op.String(), fmt.Sprintf("Failed to locate transaction: %v", err), auditlog.Context{
			"bank_trx_id":    d.BankTrxID,
			"gateway_trx_id": d.GatewayTrxID,
		}, nil)
		return nil, err
	}

	record := gateway.ConfirmationRecord{
		SepOnlineNo:  req.CustomerID,
		BankTrxID:    d.BankTrxID,
		GatewayTrxID: d.GatewayTrxID,
		InvoiceID:    d.InvoiceID,
		PmtStatus:    paymentStatus,
		StmtDate:     d.StmtDate,
		ProcessDate:  s.now().In(s.location).Format(gatewayTimeLayout),
		TrxAmount:    req.Amount,
		Currency:     currency,
	}
	request := gateway.OperationParams(s.merchant.Code, token, record.Params()).Map()
	extra := ledger.Fields{
		"request_data":   datatypes.JSONMap(request),
		"payment_status": paymentStatus,
	}
	s.audit.Info(ctx, op.String(), "Payment confirmation request", auditlog.Context{
		"transaction_id": txn.ID,
		"request":        request,
	}, &txn.ID)

	resp, err := s.gateway.ConfirmPayment(ctx, s.merchant.Code, token, record)
	if err != nil {
		return nil, s.fail(ctx, op, txn, "Payment confirmation", err, extra)
	}

	fields := outcome(resp, models.StatusConfirmed)
	for k, v := range extra {
		fields[k] = v
	}
	s.finish(ctx, op, txn, "Payment confirmation response", resp, fields)

	if resp.Successful() {
		s.publishOutcome(ctx, txn, req, currency, paymentStatus)
	}
	return resp, nil
}

// resolveToken returns the token to use, or the failing authentication
// response when no token could be obtained.
func (s *GatewayService) resolveToken(ctx context.Context, src TokenSource) (string, *gateway.Response, error) {
	if src.Explicit() {
		return src.key, nil, nil
	}
	resp, err := s.tokens.Get(ctx, false)
	if err != nil {
		return "", nil, err
	}
	if !resp.Successful() {
		return "", resp, nil
	}
	return resp.TokenKey, nil, nil
}

func (s *GatewayService) check(req interface{}) error {
	if err := s.validate.Struct(req); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

func (s *GatewayService) currency(c string) string {
	if c == "" {
		return s.merchant.Currency
	}
	return c
}

// open creates the ledger row for a call. A failure here aborts the call.
func (s *GatewayService) open(ctx context.Context, op gateway.Operation, txn *models.Transaction) (*models.Transaction, error) {
	now := s.now()
	txn.MerchantCode = s.merchant.Code
	txn.ProcessDate = &now
	if txn.Currency == "" {
		txn.Currency = s.merchant.Currency
	}
	if txn.Status == "" {
		txn.Status = models.StatusInitiated
	}
	if err := s.ledger.Create(ctx, txn); err != nil {
		s.audit.Error(ctx, op.String(), fmt.Sprintf("Failed to record transaction: %v", err), nil, nil)
		return nil, fmt.Errorf("%s: failed to record transaction: %w", op, err)
	}
	return txn, nil
}

func (s *GatewayService) finish(ctx context.Context, op gateway.Operation, txn *models.Transaction, message string, resp *gateway.Response, fields ledger.Fields) {
	s.update(ctx, op, txn, fields)
	s.audit.Info(ctx, op.String(), message, auditlog.Context{
		"transaction_id": txn.ID,
		"response":       resp.Map(),
	}, &txn.ID)
}

// fail records an exceptional outcome and returns cause unchanged.
func (s *GatewayService) fail(ctx context.Context, op gateway.Operation, txn *models.Transaction, label string, cause error, extra ledger.Fields) error {
	fields := ledger.Fields{
		"status":            models.StatusFailed,
		"error_code":        models.ExceptionCode,
		"error_description": cause.Error(),
	}
	for k, v := range extra {
		fields[k] = v
	}
	s.update(ctx, op, txn, fields)
	s.audit.Error(ctx, op.String(), fmt.Sprintf("%s error: %v", label, cause), auditlog.Context{
		"transaction_id": txn.ID,
		"exception": map[string]interface{}{
			"message": cause.Error(),
			"type":    fmt.Sprintf("%T", cause),
		},
	}, &txn.ID)
	return cause
}

// update never fails the call. A lost ledger write is kept in the audit log
// so the stale sweeper leaves the row for reconciliation.
func (s *GatewayService) update(ctx context.Context, op gateway.Operation, txn *models.Transaction, fields ledger.Fields) {
	if err := s.ledger.Update(ctx, txn, fields); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"operation":      op,
			"transaction_id": txn.ID,
		}).Warn("Failed to update eSADAD transaction")
		s.audit.Error(ctx, op.String(), auditlog.MessageOrphanedOutcome, auditlog.Context{
			"transaction_id": txn.ID,
			"exception":      err.Error(),
			"outcome":        map[string]interface{}(fields),
		}, &txn.ID)
	}
}

// publishOutcome emits payment.confirmed for PmtNew and payment.cancelled for PmtCanc.
func (s *GatewayService) publishOutcome(ctx context.Context, txn *models.Transaction, req ConfirmPaymentRequest, currency, paymentStatus string) {
	build := events.NewPaymentConfirmed
	if paymentStatus == models.PaymentStatusCancel {
		build = events.NewPaymentCancelled
	}
	event := build(events.PaymentEvent{
		TransactionID: txn.ID,
		MerchantCode:  s.merchant.Code,
		CustomerID:    req.CustomerID,
		InvoiceID:     req.Details.InvoiceID,
		BankTrxID:     req.Details.BankTrxID,
		GatewayTrxID:  req.Details.GatewayTrxID,
		Amount:        req.Amount,
		Currency:      currency,
		PaymentStatus: paymentStatus,
	})
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.WithError(err).WithField("transaction_id", txn.ID).Warn("Failed to publish payment event")
	}
}

var stmtDateLayouts = []string{
	gatewayTimeLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
	"20060102",
}

// parseGatewayTime converts a gateway timestamp; unknown formats yield nil.
func (s *GatewayService) parseGatewayTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range stmtDateLayouts {
		if t, err := time.ParseInLocation(layout, value, s.location); err == nil {
			return &t
		}
	}
	s.log.WithField("stmt_date", value).Warn("Unrecognised eSADAD statement date")
	return nil
}

func outcome(resp *gateway.Response, success string) ledger.Fields {
	status := models.StatusFailed
	if resp.Successful() {
		status = success
	}
	return ledger.Fields{
		"status":            status,
		"error_code":        nullable(resp.ErrorCode),
		"error_description": nullable(resp.ErrorDescription),
		"response_data":     datatypes.JSONMap(resp.Map()),
	}
}

func nullable(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
