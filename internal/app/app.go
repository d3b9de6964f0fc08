package app

import (
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"esadad-service/internal/auditlog"
	"esadad-service/internal/config"
	"esadad-service/internal/encryption"
	"esadad-service/internal/events"
	"esadad-service/internal/gateway"
	"esadad-service/internal/ledger"
	"esadad-service/internal/services"
)

// App holds the services shared by the HTTP server and the worker.
type App struct {
	DB           *gorm.DB
	Ledger       *ledger.GormStore
	Audit        *auditlog.GormSink
	Payments     *services.GatewayService
	Transactions *services.TransactionService

	closers []func() error
}

// Build wires the gateway client, ledger, log sink and orchestrator.
func Build(cfg *config.Config, db *gorm.DB, log *logrus.Logger) (*App, error) {
	encryptor, err := encryption.Load(cfg.PublicKeyPath, log)
	if err != nil {
		return nil, err
	}

	client, err := gateway.NewClient(gateway.Endpoints(cfg.Endpoints), gateway.SOAPDialer(gateway.SOAPOptions{
		Timeout:            cfg.Transport.Timeout,
		InsecureSkipVerify: cfg.Transport.InsecureSkipVerify,
		Namespace:          cfg.Transport.Namespace,
	}))
	if err != nil {
		return nil, err
	}

	a := &App{DB: db}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		writer := events.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.PaymentTopic)
		publisher = events.NewKafkaPublisher(writer)
		a.closers = append(a.closers, writer.Close)
		log.WithField("topic", cfg.Kafka.PaymentTopic).Info("Publishing payment events to Kafka")
	}

	a.Ledger = ledger.NewGormStore(db, cfg.Database.TransactionsTable)
	a.Audit = auditlog.NewGormSink(db, cfg.Database.LogsTable, cfg.Logs.Channel, log)
	a.Payments = services.NewGatewayService(
		services.Merchant{
			Code:     cfg.Merchant.Code,
			Password: cfg.Merchant.Password,
			Currency: cfg.CurrencyCode,
		},
		client,
		a.Ledger,
		a.Audit,
		encryptor,
		publisher,
		cfg.Location,
		log,
	)
	a.Transactions = services.NewTransactionService(a.Ledger, a.Audit, cfg.StaleAfter, log)
	return a, nil
}

// Close releases the event writer.
func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			logrus.WithError(err).Warn("Failed to close resource")
		}
	}
}
