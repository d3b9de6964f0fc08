package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"esadad-service/internal/gateway"
	"esadad-service/internal/models"
	"esadad-service/pkg/common"
)

const invoicePrefix = "ESD"

var (
	ErrSessionExpired = errors.New("payment session expired")
	ErrSessionBusy    = errors.New("payment session is already being processed")
)

// PaymentGateway is the subset of GatewayService the checkout flow drives.
type PaymentGateway interface {
	InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*gateway.Response, error)
	RequestPayment(ctx context.Context, req PaymentRequest) (*gateway.Response, error)
	ConfirmPayment(ctx context.Context, req ConfirmPaymentRequest) (*gateway.Response, error)
}

type InvoiceFinder interface {
	FindByInvoiceID(ctx context.Context, invoiceID string) (*TransactionView, error)
}

// ConfirmationJob is a confirmation handed to the retry queue after a
// transport failure.
type ConfirmationJob struct {
	CustomerID    string             `json:"customer_id"`
	Details       TransactionDetails `json:"transaction_details"`
	Amount        decimal.Decimal    `json:"amount"`
	Currency      string             `json:"currency,omitempty"`
	PaymentStatus string             `json:"payment_status"`
}

func (j ConfirmationJob) Request() ConfirmPaymentRequest {
	return ConfirmPaymentRequest{
		CustomerID:    j.CustomerID,
		Details:       j.Details,
		Amount:        j.Amount,
		Currency:      j.Currency,
		PaymentStatus: j.PaymentStatus,
		Token:         ResolveFromCache(),
	}
}

type ConfirmationQueue interface {
	EnqueueConfirmation(ctx context.Context, job ConfirmationJob) error
}

// PendingConfirmationError means the payment was requested but confirmation
// failed in transport and has been queued for retry.
type PendingConfirmationError struct {
	Err error
}

func (e *PendingConfirmationError) Error() string {
	return fmt.Sprintf("payment confirmation queued for retry: %v", e.Err)
}

func (e *PendingConfirmationError) Unwrap() error { return e.Err }

type PaymentStep struct {
	CustomerID string          `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	InvoiceID  string          `json:"invoice_id"`
}

type CheckoutSession struct {
	ID                  string              `json:"id"`
	Payment             *PaymentStep        `json:"payment,omitempty"`
	Transaction         *TransactionDetails `json:"transaction,omitempty"`
	ConfirmationPending bool                `json:"confirmation_pending,omitempty"`

	processing bool
}

type StartPaymentInput struct {
	CustomerID       string          `json:"customer_id" binding:"required"`
	CustomerPassword string          `json:"customer_password" binding:"required"`
	Amount           decimal.Decimal `json:"amount"`
	InvoiceID        string          `json:"invoice_id"`
}

type SuccessResult struct {
	Details     TransactionDetails `json:"transaction_details"`
	Transaction *TransactionView   `json:"transaction"`
}

// CheckoutService keeps the wizard state between the payment and OTP steps.
// Sessions are stored by value; mu serialises every read-modify-write.
type CheckoutService struct {
	mu       sync.Mutex
	payments PaymentGateway
	invoices InvoiceFinder
	queue    ConfirmationQueue
	sessions *cache.Cache
	log      logrus.FieldLogger
}

func NewCheckoutService(payments PaymentGateway, invoices InvoiceFinder, queue ConfirmationQueue, ttl time.Duration, log logrus.FieldLogger) *CheckoutService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CheckoutService{
		payments: payments,
		invoices: invoices,
		queue:    queue,
		sessions: cache.New(ttl, 2*ttl),
		log:      log.WithField("component", "esadad_checkout"),
	}
}

// StartPayment initiates the payment and opens a session on success. A
// business failure returns the gateway response and no session. An empty
// invoice id is generated.
func (s *CheckoutService) StartPayment(ctx context.Context, in StartPaymentInput) (*CheckoutSession, *gateway.Response, error) {
	if in.Amount.LessThan(decimal.NewFromInt(1)) {
		return nil, nil, &ValidationError{Err: errors.New("amount must be at least 1")}
	}
	if in.InvoiceID == "" {
		in.InvoiceID = common.GenerateInvoiceID(invoicePrefix, time.Now())
	}

	resp, err := s.payments.InitiatePayment(ctx, InitiatePaymentRequest{
		CustomerID:       in.CustomerID,
		CustomerPassword: in.CustomerPassword,
		Token:            ResolveFromCache(),
	})
	if err != nil || !resp.Successful() {
		return nil, resp, err
	}

	session := CheckoutSession{
		ID: uuid.NewString(),
		Payment: &PaymentStep{
			CustomerID: in.CustomerID,
			Amount:     in.Amount,
			InvoiceID:  in.InvoiceID,
		},
	}
	s.sessions.SetDefault(session.ID, session)
	return &session, resp, nil
}

// VerifyOTP requests and confirms the payment for an open session. The
// payment step is claimed before the gateway is called, so a concurrent call
// for the same session gets ErrSessionBusy.
func (s *CheckoutService) VerifyOTP(ctx context.Context, sessionID, otp string) (*CheckoutSession, *gateway.Response, error) {
	session, err := s.claim(sessionID)
	if err != nil {
		return nil, nil, err
	}
	step := session.Payment

	resp, err := s.payments.RequestPayment(ctx, PaymentRequest{
		CustomerID: step.CustomerID,
		OTP:        otp,
		InvoiceID:  step.InvoiceID,
		Amount:     step.Amount,
		Token:      ResolveFromCache(),
	})
	if err != nil || !resp.Successful() {
		return s.release(session), resp, err
	}

	details := TransactionDetails{
		BankTrxID:    resp.BankTrxID,
		GatewayTrxID: resp.GatewayTrxID,
		InvoiceID:    resp.InvoiceID,
		StmtDate:     resp.StmtDate,
	}
	if details.InvoiceID == "" {
		details.InvoiceID = step.InvoiceID
	}

	confirm, err := s.payments.ConfirmPayment(ctx, ConfirmPaymentRequest{
		CustomerID:    step.CustomerID,
		Details:       details,
		Amount:        step.Amount,
		PaymentStatus: models.PaymentStatusNew,
		Token:         ResolveFromCache(),
	})
	if err != nil {
		if gateway.IsTransportError(err) && s.queue != nil {
			if qerr := s.enqueue(ctx, step, details); qerr == nil {
				return s.complete(session, details, true), nil, &PendingConfirmationError{Err: err}
			}
		}
		return s.release(session), nil, err
	}
	if !confirm.Successful() {
		return s.release(session), confirm, nil
	}

	return s.complete(session, details, false), confirm, nil
}

// Success returns the completed transaction for the session.
func (s *CheckoutService) Success(ctx context.Context, sessionID string) (*SuccessResult, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Transaction == nil {
		return nil, ErrSessionExpired
	}

	result := &SuccessResult{Details: *session.Transaction}
	if s.invoices != nil {
		view, err := s.invoices.FindByInvoiceID(ctx, session.Transaction.InvoiceID)
		if err != nil {
			s.log.WithError(err).WithField("invoice_id", session.Transaction.InvoiceID).Warn("Transaction not found for completed session")
		}
		result.Transaction = view
	}
	return result, nil
}

func (s *CheckoutService) session(id string) (CheckoutSession, error) {
	if id == "" {
		return CheckoutSession{}, ErrSessionExpired
	}
	v, ok := s.sessions.Get(id)
	if !ok {
		return CheckoutSession{}, ErrSessionExpired
	}
	return v.(CheckoutSession), nil
}

// claim marks the payment step as in flight.
func (s *CheckoutService) claim(id string) (CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.session(id)
	if err != nil {
		return CheckoutSession{}, err
	}
	if session.Payment == nil {
		return CheckoutSession{}, ErrSessionExpired
	}
	if session.processing {
		return CheckoutSession{}, ErrSessionBusy
	}
	session.processing = true
	s.sessions.SetDefault(id, session)
	return session, nil
}

// release reopens the payment step after a failed attempt.
func (s *CheckoutService) release(claimed CheckoutSession) *CheckoutSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	claimed.processing = false
	if _, ok := s.sessions.Get(claimed.ID); ok {
		s.sessions.SetDefault(claimed.ID, claimed)
	}
	return &claimed
}

func (s *CheckoutService) complete(claimed CheckoutSession, details TransactionDetails, pending bool) *CheckoutSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	claimed.processing = false
	claimed.Payment = nil
	claimed.Transaction = &details
	claimed.ConfirmationPending = pending
	s.sessions.SetDefault(claimed.ID, claimed)
	return &claimed
}

func (s *CheckoutService) enqueue(ctx context.Context, step *PaymentStep, details TransactionDetails) error {
	err := s.queue.EnqueueConfirmation(ctx, ConfirmationJob{
		CustomerID:    step.CustomerID,
		Details:       details,
		Amount:        step.Amount,
		PaymentStatus: models.PaymentStatusNew,
	})
	if err != nil {
		s.log.WithError(err).WithField("bank_trx_id", details.BankTrxID).Error("Failed to queue payment confirmation")
		return err
	}
	s.log.WithField("bank_trx_id", details.BankTrxID).Warn("Payment confirmation queued for retry")
	return nil
}
