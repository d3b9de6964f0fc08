package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const (
	TypePaymentConfirmed = "payment.confirmed"
	TypePaymentCancelled = "payment.cancelled"
)

var (
	publishSuccessCounter = metrics.GetOrCreateCounter(`esadad_events_published_total{result="success"}`)
	publishErrorCounter   = metrics.GetOrCreateCounter(`esadad_events_published_total{result="error"}`)
)

type PaymentEvent struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	TransactionID uint            `json:"transaction_id"`
	MerchantCode  string          `json:"merchant_code"`
	CustomerID    string          `json:"customer_id"`
	InvoiceID     string          `json:"invoice_id"`
	BankTrxID     string          `json:"bank_trx_id"`
	GatewayTrxID  string          `json:"gateway_trx_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentStatus string          `json:"payment_status"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func NewPaymentConfirmed(e PaymentEvent) PaymentEvent {
	return newEvent(TypePaymentConfirmed, e)
}

// NewPaymentCancelled is published when the gateway accepts a PmtCanc confirmation.
func NewPaymentCancelled(e PaymentEvent) PaymentEvent {
	return newEvent(TypePaymentCancelled, e)
}

func newEvent(eventType string, e PaymentEvent) PaymentEvent {
	e.ID = uuid.NewString()
	e.Type = eventType
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return e
}

type Publisher interface {
	Publish(ctx context.Context, event PaymentEvent) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaPublisher struct {
	writer MessageWriter
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.ReferenceHash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           100 * time.Millisecond,
		Async:                  false,
		AllowAutoTopicCreation: false,
	}
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Publish keys messages by invoice so events for one invoice stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, event PaymentEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		publishErrorCounter.Inc()
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.InvoiceID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		publishErrorCounter.Inc()
		return err
	}
	publishSuccessCounter.Inc()
	return nil
}

// NopPublisher drops events; used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, PaymentEvent) error { return nil }
