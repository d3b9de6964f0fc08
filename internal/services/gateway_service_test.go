package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"esadad-service/internal/auditlog"
	"esadad-service/internal/database/dbtest"
	"esadad-service/internal/encryption"
	"esadad-service/internal/events"
	"esadad-service/internal/gateway"
	"esadad-service/internal/ledger"
	"esadad-service/internal/models"
)

var fixedNow = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

func response(t *testing.T, fields map[string]string) *gateway.Response {
	t.Helper()
	resp, err := gateway.NewResponse(fields)
	require.NoError(t, err)
	return resp
}

type fakeGateway struct {
	authResp  *gateway.Response
	authErr   error
	authCalls int

	initResp  *gateway.Response
	initErr   error
	initCalls int
	initToken string
	initRec   gateway.InitiationRecord

	reqResp  *gateway.Response
	reqErr   error
	reqCalls int
	reqRec   gateway.PaymentRecord

	confResp  *gateway.Response
	confErr   error
	confCalls int
	confRec   gateway.ConfirmationRecord
	onConfirm func()
}

func (f *fakeGateway) Authenticate(ctx context.Context, merchantCode, password string) (*gateway.Response, error) {
	f.authCalls++
	return f.authResp, f.authErr
}

func (f *fakeGateway) InitiatePayment(ctx context.Context, merchantCode, tokenKey string, rec gateway.InitiationRecord) (*gateway.Response, error) {
	f.initCalls++
	f.initToken = tokenKey
	f.initRec = rec
	return f.initResp, f.initErr
}

func (f *fakeGateway) RequestPayment(ctx context.Context, merchantCode, tokenKey string, rec gateway.PaymentRecord) (*gateway.Response, error) {
	f.reqCalls++
	f.reqRec = rec
	return f.reqResp, f.reqErr
}

func (f *fakeGateway) ConfirmPayment(ctx context.Context, merchantCode, tokenKey string, rec gateway.ConfirmationRecord) (*gateway.Response, error) {
	f.confCalls++
	f.confRec = rec
	if f.onConfirm != nil {
		f.onConfirm()
	}
	return f.confResp, f.confErr
}

type recordingPublisher struct {
	events []events.PaymentEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.PaymentEvent) error {
	p.events = append(p.events, e)
	return nil
}

type failingEncryptor struct{}

func (failingEncryptor) Encrypt(string) (string, error) {
	return "", &encryption.EncryptionError{Err: errors.New("message too long for RSA key size")}
}

type failingCreateStore struct {
	ledger.Store
}

func (failingCreateStore) Create(context.Context, *models.Transaction) error {
	return errors.New("database unavailable")
}

type failingUpdateStore struct {
	ledger.Store
}

func (failingUpdateStore) Update(context.Context, *models.Transaction, ledger.Fields) error {
	return errors.New("lock wait timeout")
}

type fixture struct {
	db    *gorm.DB
	gw    *fakeGateway
	store *ledger.GormStore
	sink  *auditlog.GormSink
	pub   *recordingPublisher
	svc   *GatewayService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	logger, _ := test.NewNullLogger()

	f := &fixture{
		db:    db,
		store: ledger.NewGormStore(db, ""),
		sink:  auditlog.NewGormSink(db, "", "esadad", logger),
		pub:   &recordingPublisher{},
		gw: &fakeGateway{
			authResp: response(t, map[string]string{
				"errorCode":        "000",
				"errorDescription": "Success",
				"tokenKey":         "T1",
				"expiryDate":       "20250101120000",
			}),
		},
	}
	f.svc = NewGatewayService(
		Merchant{Code: "M1", Password: "p", Currency: "886"},
		f.gw, f.store, f.sink, encryption.New(nil, logger), f.pub, time.UTC, logger,
	)
	f.svc.now = func() time.Time { return fixedNow }
	f.svc.tokens.now = f.svc.now
	return f
}

func (f *fixture) rows(t *testing.T) []models.Transaction {
	t.Helper()
	var txns []models.Transaction
	require.NoError(t, f.db.Table(models.DefaultTransactionsTable).Order("id").Find(&txns).Error)
	return txns
}

func TestAuthenticateRecordsConfirmedTransaction(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T1", resp.TokenKey)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusConfirmed, rows[0].Status)
	require.NotNil(t, rows[0].TokenKey)
	assert.Equal(t, "T1", *rows[0].TokenKey)
	assert.Equal(t, "[HIDDEN]", rows[0].RequestData["password"])
	assert.True(t, rows[0].Successful())
}

func TestAuthenticateBusinessFailure(t *testing.T) {
	f := newFixture(t)
	f.gw.authResp = response(t, map[string]string{"errorCode": "101", "errorDescription": "Invalid merchant"})

	resp, err := f.svc.Authenticate(context.Background())
	require.NoError(t, err)
	assert.False(t, resp.Successful())

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusFailed, rows[0].Status)
	assert.Nil(t, rows[0].TokenKey)
}

func TestTokenIsCachedWithinTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Token(ctx, false)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := f.svc.Token(ctx, false)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, "T1", second.TokenKey)
	assert.Equal(t, 1, f.gw.authCalls)

	_, err = f.svc.Token(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.gw.authCalls)
}

func TestTokenWithUnparsableExpiryIsReturnedButNotCached(t *testing.T) {
	f := newFixture(t)
	f.gw.authResp = response(t, map[string]string{"errorCode": "000", "tokenKey": "T1", "expiryDate": "soon"})
	ctx := context.Background()

	resp, err := f.svc.Token(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "T1", resp.TokenKey)

	_, err = f.svc.Token(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.gw.authCalls)

	errs, err := f.sink.ByService(ctx, tokenCacheService, 0)
	require.NoError(t, err)
	var sawFailure bool
	for _, e := range errs {
		if e.Level == models.LevelError {
			sawFailure = true
			assert.Contains(t, e.Message, "Failed to cache token")
		}
	}
	assert.True(t, sawFailure)
}

func TestTokenTransportFaultIsNotCached(t *testing.T) {
	f := newFixture(t)
	f.gw.authErr = &gateway.TransportError{Operation: gateway.Authentication, Err: errors.New("connection refused")}
	f.gw.authResp = nil

	_, err := f.svc.Token(context.Background(), false)
	require.Error(t, err)
	assert.True(t, gateway.IsTransportError(err))

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusFailed, rows[0].Status)
	assert.Equal(t, models.ExceptionCode, *rows[0].ErrorCode)
	assert.Contains(t, *rows[0].ErrorDescription, "connection refused")
}

func TestCacheTTL(t *testing.T) {
	tests := []struct {
		name    string
		expiry  string
		want    time.Duration
		wantErr bool
	}{
		{name: "two hours", expiry: "20250101120000", want: 115 * time.Minute},
		{name: "just above buffer", expiry: "20250101100700", want: 2 * time.Minute},
		{name: "inside buffer", expiry: "20250101100300", want: time.Minute},
		{name: "partial minute truncates", expiry: "20250101100559", want: time.Minute},
		{name: "already expired", expiry: "20241231235900", want: time.Minute},
		{name: "unparsable", expiry: "2025-01-01", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CacheTTL(tt.expiry, fixedNow, time.UTC)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExplicitTokenSkipsTokenCache(t *testing.T) {
	f := newFixture(t)
	f.gw.initResp = response(t, map[string]string{"errorCode": "000"})

	_, err := f.svc.InitiatePayment(context.Background(), InitiatePaymentRequest{
		CustomerID:       "C1",
		CustomerPassword: "secret",
		Token:            ExplicitToken("T9"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, f.gw.authCalls)
	assert.Equal(t, "T9", f.gw.initToken)
}

func TestTokenFailureShortCircuitsEveryOperation(t *testing.T) {
	ctx := context.Background()
	denied := map[string]string{"errorCode": "401", "errorDescription": "Merchant blocked"}

	calls := map[string]func(*GatewayService) (*gateway.Response, error){
		"initiate": func(s *GatewayService) (*gateway.Response, error) {
			return s.InitiatePayment(ctx, InitiatePaymentRequest{CustomerID: "C1", CustomerPassword: "pw"})
		},
		"request": func(s *GatewayService) (*gateway.Response, error) {
			return s.RequestPayment(ctx, PaymentRequest{CustomerID: "C1", OTP: "1234", InvoiceID: "INV1", Amount: decimal.NewFromInt(100)})
		},
		"confirm": func(s *GatewayService) (*gateway.Response, error) {
			return s.ConfirmPayment(ctx, ConfirmPaymentRequest{
				CustomerID: "C1",
				Details:    TransactionDetails{BankTrxID: "B1", GatewayTrxID: "G1", InvoiceID: "INV1"},
				Amount:     decimal.NewFromInt(100),
			})
		},
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.gw.authResp = response(t, denied)

			resp, err := call(f.svc)
			require.NoError(t, err)
			assert.Equal(t, "401", resp.ErrorCode)
			assert.Equal(t, "Merchant blocked", resp.ErrorDescription)

			rows := f.rows(t)
			require.Len(t, rows, 1, "only the authentication attempt is recorded")
			assert.Empty(t, rows[0].CustomerID)
			assert.Zero(t, f.gw.initCalls+f.gw.reqCalls+f.gw.confCalls)
		})
	}
}

func TestInitiatePaymentRedactsPassword(t *testing.T) {
	f := newFixture(t)
	f.gw.initResp = response(t, map[string]string{"errorCode": "000", "errorDescription": "OTP sent"})
	ctx := context.Background()

	resp, err := f.svc.InitiatePayment(ctx, InitiatePaymentRequest{
		CustomerID:       "C1",
		CustomerPassword: "secret",
		Token:            ExplicitToken("T1"),
	})
	require.NoError(t, err)
	assert.True(t, resp.Successful())
	assert.Equal(t, "encrypted_secret", f.gw.initRec.Password)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusRequested, rows[0].Status)

	raw, err := json.Marshal(rows[0].RequestData)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
	assert.Contains(t, string(raw), gateway.RedactedPlaceholder)

	entries, err := f.sink.ForTransaction(ctx, rows[0].ID)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		raw, err := json.Marshal(e)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "secret")
	}
}

func TestRequestPaymentBusinessFailure(t *testing.T) {
	f := newFixture(t)
	f.gw.reqResp = response(t, map[string]string{
		"errorCode":        "057",
		"errorDescription": "Invalid OTP",
		"bankTrxId":        "B1",
	})

	resp, err := f.svc.RequestPayment(context.Background(), PaymentRequest{
		CustomerID: "C1",
		OTP:        "1234",
		InvoiceID:  "INV1",
		Amount:     decimal.RequireFromString("100.00"),
		Token:      ExplicitToken("T1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "057", resp.ErrorCode)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusFailed, rows[0].Status)
	assert.Equal(t, "057", *rows[0].ErrorCode)
	assert.Nil(t, rows[0].BankTrxID)
	assert.Equal(t, "886", rows[0].Currency)
	assert.Equal(t, gateway.RedactedPlaceholder, rows[0].RequestData["transRec"].(map[string]interface{})["otp"])
}

func TestRequestPaymentSuccessStoresGatewayIdentifiers(t *testing.T) {
	f := newFixture(t)
	f.gw.reqResp = response(t, map[string]string{
		"errorCode": "000",
		"bankTrxId": "B1",
		"sepTrxId":  "G1",
		"stmtDate":  "20250101103000",
	})

	_, err := f.svc.RequestPayment(context.Background(), PaymentRequest{
		CustomerID: "C1",
		OTP:        "1234",
		InvoiceID:  "INV1",
		Amount:     decimal.NewFromInt(250),
		Currency:   "840",
		Token:      ExplicitToken("T1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "encrypted_1234", f.gw.reqRec.OTP)
	assert.Equal(t, "20250101100000", f.gw.reqRec.ProcessDate)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusRequested, rows[0].Status)
	assert.Equal(t, "B1", *rows[0].BankTrxID)
	assert.Equal(t, "G1", *rows[0].GatewayTrxID)
	assert.Equal(t, "840", rows[0].Currency)
	require.NotNil(t, rows[0].StmtDate)
	assert.True(t, rows[0].StmtDate.Equal(time.Date(2025, 1, 1, 10, 30, 0, 0, time.UTC)))
}

func TestRequestPaymentRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RequestPayment(context.Background(), PaymentRequest{CustomerID: "C1", OTP: "1", InvoiceID: "I", Amount: decimal.Zero})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Empty(t, f.rows(t))
	assert.Zero(t, f.gw.authCalls)
}

func TestConfirmPaymentReusesExistingEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bank, sep := "B1", "G1"
	existing := &models.Transaction{MerchantCode: "M1", CustomerID: "C1", InvoiceID: "INV1", BankTrxID: &bank, GatewayTrxID: &sep, Status: models.StatusRequested, Currency: "886"}
	require.NoError(t, f.store.Create(ctx, existing))
	f.gw.confResp = response(t, map[string]string{"errorCode": "000"})

	_, err := f.svc.ConfirmPayment(ctx, ConfirmPaymentRequest{
		CustomerID: "C1",
		Details:    TransactionDetails{BankTrxID: "B1", GatewayTrxID: "G1", InvoiceID: "INV1", StmtDate: "20250101103000"},
		Amount:     decimal.NewFromInt(100),
		Token:      ExplicitToken("T1"),
	})
	require.NoError(t, err)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, existing.ID, rows[0].ID)
	assert.Equal(t, models.StatusConfirmed, rows[0].Status)
	require.NotNil(t, rows[0].PaymentStatus)
	assert.Equal(t, models.PaymentStatusNew, *rows[0].PaymentStatus)
	assert.Equal(t, models.PaymentStatusNew, f.gw.confRec.PmtStatus)

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, events.TypePaymentConfirmed, f.pub.events[0].Type)
	assert.Equal(t, existing.ID, f.pub.events[0].TransactionID)
}

func TestConfirmPaymentCancelPublishesCancelledEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.confResp = response(t, map[string]string{"errorCode": "000"})

	_, err := f.svc.ConfirmPayment(ctx, ConfirmPaymentRequest{
		CustomerID:    "C1",
		Details:       TransactionDetails{BankTrxID: "B2", GatewayTrxID: "G2", InvoiceID: "INV2"},
		Amount:        decimal.NewFromInt(50),
		PaymentStatus: models.PaymentStatusCancel,
		Token:         ExplicitToken("T1"),
	})
	require.NoError(t, err)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].PaymentStatus)
	assert.Equal(t, models.PaymentStatusCancel, *rows[0].PaymentStatus)

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, events.TypePaymentCancelled, f.pub.events[0].Type)
	assert.NotEqual(t, events.TypePaymentConfirmed, f.pub.events[0].Type)
	assert.Equal(t, models.PaymentStatusCancel, f.pub.events[0].PaymentStatus)
}

func TestConfirmPaymentCreatesRequestedEntryAndRecordsTransportFault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.confErr = &gateway.TransportError{Operation: gateway.PaymentConfirm, Err: errors.New("read: connection reset by peer")}
	f.gw.onConfirm = func() {
		rows := f.rows(t)
		require.Len(t, rows, 1)
		assert.Equal(t, models.StatusRequested, rows[0].Status)
	}

	_, err := f.svc.ConfirmPayment(ctx, ConfirmPaymentRequest{
		CustomerID:    "C1",
		Details:       TransactionDetails{BankTrxID: "B2", GatewayTrxID: "G2", InvoiceID: "INV2"},
		Amount:        decimal.NewFromInt(100),
		PaymentStatus: models.PaymentStatusCancel,
		Token:         ExplicitToken("T1"),
	})
	require.Error(t, err)
	assert.True(t, gateway.IsTransportError(err))

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusFailed, rows[0].Status)
	assert.Equal(t, models.ExceptionCode, *rows[0].ErrorCode)
	assert.Contains(t, *rows[0].ErrorDescription, "connection reset by peer")
	assert.Equal(t, "B2", *rows[0].BankTrxID)
	assert.Equal(t, models.PaymentStatusCancel, *rows[0].PaymentStatus)
	assert.Empty(t, f.pub.events)

	errs, err := f.sink.ByLevel(ctx, models.LevelError, 0)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "payment_confirm", errs[0].Service)
}

func TestEncryptionErrorAbortsBeforeRemoteCall(t *testing.T) {
	f := newFixture(t)
	f.svc.encryptor = failingEncryptor{}

	_, err := f.svc.InitiatePayment(context.Background(), InitiatePaymentRequest{
		CustomerID:       "C1",
		CustomerPassword: "secret",
		Token:            ExplicitToken("T1"),
	})
	var encErr *encryption.EncryptionError
	require.ErrorAs(t, err, &encErr)
	assert.Zero(t, f.gw.initCalls)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusFailed, rows[0].Status)
	assert.Equal(t, models.ExceptionCode, *rows[0].ErrorCode)
}

func TestLedgerCreateFailureAbortsCall(t *testing.T) {
	f := newFixture(t)
	f.svc.ledger = failingCreateStore{Store: f.store}

	_, err := f.svc.Authenticate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unavailable")
	assert.Zero(t, f.gw.authCalls)
}

func TestUnrecordedOutcomeSurvivesStaleSweep(t *testing.T) {
	f := newFixture(t)
	f.svc.ledger = failingUpdateStore{Store: f.store}
	ctx := context.Background()

	resp, err := f.svc.Authenticate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T1", resp.TokenKey)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusInitiated, rows[0].Status)

	ids, err := f.sink.OrphanedTransactionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint{rows[0].ID}, ids)

	logger, _ := test.NewNullLogger()
	sweeper := NewTransactionService(f.store, f.sink, 30*time.Minute, logger)
	sweeper.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err := sweeper.CancelStaleTransactions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	rows = f.rows(t)
	assert.Equal(t, models.StatusInitiated, rows[0].Status)
}

func TestValidationErrorBeforeTokenLookup(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.InitiatePayment(context.Background(), InitiatePaymentRequest{CustomerPassword: "pw"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = f.svc.ConfirmPayment(context.Background(), ConfirmPaymentRequest{
		CustomerID:    "C1",
		Details:       TransactionDetails{BankTrxID: "B1", GatewayTrxID: "G1"},
		PaymentStatus: "Unknown",
	})
	require.ErrorAs(t, err, &ve)
	assert.Zero(t, f.gw.authCalls)
}
