package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esadad-service/internal/gateway"
	"esadad-service/internal/ledger"
	"esadad-service/internal/models"
	"esadad-service/internal/services"
	"esadad-service/pkg/common"
)

type stubCheckout struct {
	session *services.CheckoutSession
	resp    *gateway.Response
	err     error

	gotSession string
}

func (s *stubCheckout) StartPayment(ctx context.Context, in services.StartPaymentInput) (*services.CheckoutSession, *gateway.Response, error) {
	return s.session, s.resp, s.err
}

func (s *stubCheckout) VerifyOTP(ctx context.Context, sessionID, otp string) (*services.CheckoutSession, *gateway.Response, error) {
	s.gotSession = sessionID
	return s.session, s.resp, s.err
}

func (s *stubCheckout) Success(ctx context.Context, sessionID string) (*services.SuccessResult, error) {
	s.gotSession = sessionID
	if s.err != nil {
		return nil, s.err
	}
	return &services.SuccessResult{Details: *s.session.Transaction}, nil
}

type stubTransactions struct {
	filter   ledger.Filter
	view     *services.TransactionView
	views    []services.TransactionView
	customer string
	err      error
}

func (s *stubTransactions) List(ctx context.Context, filter ledger.Filter) (common.PaginationResult, error) {
	s.filter = filter
	return common.PaginateResponse([]services.TransactionView{}, 0, 1, 15, ""), s.err
}

func (s *stubTransactions) Find(ctx context.Context, id uint) (*services.TransactionView, error) {
	return s.view, s.err
}

func (s *stubTransactions) FindByCustomerID(ctx context.Context, customerID string) ([]services.TransactionView, error) {
	s.customer = customerID
	return s.views, s.err
}

func (s *stubTransactions) Successful(ctx context.Context) ([]services.TransactionView, error) {
	return s.views, s.err
}

func (s *stubTransactions) Failed(ctx context.Context) ([]services.TransactionView, error) {
	return nil, errors.New("database is gone")
}

func gatewayResponse(t *testing.T, fields map[string]string) *gateway.Response {
	resp, err := gateway.NewResponse(fields)
	require.NoError(t, err)
	return resp
}

func newRouter(checkout Checkout, transactions Transactions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	r := gin.New()
	Register(r.Group("/esadad"), NewCheckoutHandler(checkout, 15*time.Minute, logger), NewTransactionHandler(transactions, logger))
	return r
}

func perform(r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const paymentBody = `{"customer_id":"C1","customer_password":"pw","amount":100,"invoice_id":"INV1"}`

func TestStartPayment(t *testing.T) {
	tests := []struct {
		name       string
		checkout   *stubCheckout
		body       string
		wantStatus int
		wantCookie bool
	}{
		{
			name: "Success",
			checkout: &stubCheckout{
				session: &services.CheckoutSession{ID: "S1", Payment: &services.PaymentStep{InvoiceID: "INV1"}},
				resp:    gatewayResponse(t, map[string]string{"errorCode": "000"}),
			},
			body:       paymentBody,
			wantStatus: http.StatusOK,
			wantCookie: true,
		},
		{
			name:       "BusinessError",
			checkout:   &stubCheckout{resp: gatewayResponse(t, map[string]string{"errorCode": "057", "errorDescription": "Invalid Token"})},
			body:       paymentBody,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "TransportError",
			checkout:   &stubCheckout{err: &gateway.TransportError{Operation: gateway.PaymentInitiation, Err: errors.New("dial tcp: timeout")}},
			body:       paymentBody,
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "ValidationError",
			checkout:   &stubCheckout{err: &services.ValidationError{Err: errors.New("amount must be at least 1")}},
			body:       paymentBody,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "MissingFields",
			checkout:   &stubCheckout{},
			body:       `{"customer_id":"C1"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := perform(newRouter(tt.checkout, &stubTransactions{}), http.MethodPost, "/esadad/payment", tt.body, nil)
			assert.Equal(t, tt.wantStatus, w.Code)
			hasCookie := strings.Contains(w.Header().Get("Set-Cookie"), SessionCookie+"=S1")
			assert.Equal(t, tt.wantCookie, hasCookie)
		})
	}
}

func TestTransportErrorHidesDetail(t *testing.T) {
	checkout := &stubCheckout{err: &gateway.TransportError{Operation: gateway.PaymentInitiation, Err: errors.New("dial tcp 172.19.0.17:443")}}
	w := perform(newRouter(checkout, &stubTransactions{}), http.MethodPost, "/esadad/payment", paymentBody, nil)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "172.19.0.17")
	assert.Contains(t, w.Body.String(), gatewayUnavailableMessage)
}

func TestBusinessErrorCarriesDescription(t *testing.T) {
	checkout := &stubCheckout{resp: gatewayResponse(t, map[string]string{"errorCode": "057", "errorDescription": "Invalid Token"})}
	w := perform(newRouter(checkout, &stubTransactions{}), http.MethodPost, "/esadad/payment", paymentBody, nil)

	var body common.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Invalid Token", body.Message)
	assert.Equal(t, "057", body.Data.(map[string]interface{})["error_code"])
}

func TestVerifyOTP(t *testing.T) {
	details := &services.TransactionDetails{BankTrxID: "B1", GatewayTrxID: "G1", InvoiceID: "INV1"}

	tests := []struct {
		name       string
		checkout   *stubCheckout
		header     map[string]string
		wantStatus int
	}{
		{
			name: "Completed",
			checkout: &stubCheckout{
				session: &services.CheckoutSession{ID: "S1", Transaction: details},
				resp:    gatewayResponse(t, map[string]string{"errorCode": "000"}),
			},
			header:     map[string]string{SessionHeader: "S1"},
			wantStatus: http.StatusOK,
		},
		{
			name: "PendingConfirmation",
			checkout: &stubCheckout{
				session: &services.CheckoutSession{ID: "S1", Transaction: details, ConfirmationPending: true},
				err:     &services.PendingConfirmationError{Err: errors.New("timeout")},
			},
			header:     map[string]string{"Cookie": SessionCookie + "=S1"},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "ExpiredSession",
			checkout:   &stubCheckout{err: services.ErrSessionExpired},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "SessionInFlight",
			checkout:   &stubCheckout{err: services.ErrSessionBusy},
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := perform(newRouter(tt.checkout, &stubTransactions{}), http.MethodPost, "/esadad/otp", `{"otp":"1234"}`, tt.header)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.header != nil {
				assert.Equal(t, "S1", tt.checkout.gotSession)
			}
		})
	}
}

func TestSuccess(t *testing.T) {
	checkout := &stubCheckout{session: &services.CheckoutSession{ID: "S1", Transaction: &services.TransactionDetails{InvoiceID: "INV1"}}}
	w := perform(newRouter(checkout, &stubTransactions{}), http.MethodGet, "/esadad/success", "", map[string]string{SessionHeader: "S1"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "INV1")
}

func TestGetTransactions(t *testing.T) {
	transactions := &stubTransactions{}
	w := perform(newRouter(&stubCheckout{}, transactions), http.MethodGet,
		"/esadad/transactions?status=failed&from_date=2025-01-01&to_date=2025-01-31&sort_field=amount&sort_direction=asc&page=2&limit=10", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "failed", transactions.filter.Status)
	assert.Equal(t, 2, transactions.filter.Page)
	assert.Equal(t, "amount asc", transactions.filter.Order())
	require.NotNil(t, transactions.filter.To)
	assert.Equal(t, 31, transactions.filter.To.Day())

	w = perform(newRouter(&stubCheckout{}, transactions), http.MethodGet, "/esadad/transactions?from_date=01-01-2025", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTransaction(t *testing.T) {
	token := "live-token-7"
	found := &stubTransactions{view: &services.TransactionView{Transaction: models.Transaction{ID: 7, InvoiceID: "INV7", TokenKey: &token}}}
	w := perform(newRouter(&stubCheckout{}, found), http.MethodGet, "/esadad/transactions/7", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "INV7")
	assert.NotContains(t, w.Body.String(), token)

	missing := &stubTransactions{err: ledger.ErrNotFound}
	w = perform(newRouter(&stubCheckout{}, missing), http.MethodGet, "/esadad/transactions/8", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = perform(newRouter(&stubCheckout{}, found), http.MethodGet, "/esadad/transactions/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransactionScopes(t *testing.T) {
	transactions := &stubTransactions{views: []services.TransactionView{{Transaction: models.Transaction{InvoiceID: "INV9"}}}}
	r := newRouter(&stubCheckout{}, transactions)

	w := perform(r, http.MethodGet, "/esadad/customers/C9/transactions", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "C9", transactions.customer)
	assert.Contains(t, w.Body.String(), "INV9")

	w = perform(r, http.MethodGet, "/esadad/reports/successful", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = perform(r, http.MethodGet, "/esadad/reports/failed", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "database is gone")
}
