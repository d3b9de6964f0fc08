package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"esadad-service/internal/gateway"
	"esadad-service/internal/services"
)

type Confirmer interface {
	ConfirmPayment(ctx context.Context, req services.ConfirmPaymentRequest) (*gateway.Response, error)
}

type Worker struct {
	Confirmer Confirmer
	Log       logrus.FieldLogger
}

func NewWorker(confirmer Confirmer, log logrus.FieldLogger) *Worker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Worker{
		Confirmer: confirmer,
		Log:       log,
	}
}

// HandleConfirmPayment retries transport failures; a gateway rejection is final.
func (w *Worker) HandleConfirmPayment(ctx context.Context, t *asynq.Task) error {
	var job services.ConfirmationJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	entry := w.Log.WithFields(logrus.Fields{
		"bank_trx_id":    job.Details.BankTrxID,
		"gateway_trx_id": job.Details.GatewayTrxID,
	})

	resp, err := w.Confirmer.ConfirmPayment(ctx, job.Request())
	if err != nil {
		if gateway.IsTransportError(err) {
			entry.WithError(err).Warn("Payment confirmation failed, will retry")
			return err
		}
		return fmt.Errorf("confirm payment: %v: %w", err, asynq.SkipRetry)
	}
	if !resp.Successful() {
		entry.WithFields(logrus.Fields{
			"error_code":        resp.ErrorCode,
			"error_description": resp.ErrorDescription,
		}).Error("Payment confirmation rejected")
		return fmt.Errorf("gateway rejected confirmation with code %s: %w", resp.ErrorCode, asynq.SkipRetry)
	}

	entry.Info("Payment confirmed by retry worker")
	return nil
}

func StartWorker(redisOpt asynq.RedisClientOpt, confirmer Confirmer, log logrus.FieldLogger) {
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	worker := NewWorker(confirmer, log)
	mux := asynq.NewServeMux()

	mux.HandleFunc(TypeConfirmPayment, worker.HandleConfirmPayment)

	if err := srv.Run(mux); err != nil {
		worker.Log.WithError(err).Fatal("could not run server")
	}
}
