package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/cartaviva/cartaviva-backend/internal/transactions"
	"github.com/cartaviva/cartaviva-backend/pkg/enums"
	"github.com/cartaviva/cartaviva-backend/pkg/logger"
	"github.com/cartaviva/cartaviva-backend/pkg/metrics"
)

const defaultSweepBatchSize = 200

type timeoutSweeper interface {
	SweepTimeouts(ctx context.Context, now time.Time, limit int) (transactions.SweepResult, error)
}

// TransactionTimeoutJobParams configure the deadline sweep job.
type TransactionTimeoutJobParams struct {
	Logger    *logger.Logger
	Sweeper   timeoutSweeper
	Metrics   *metrics.JobMetrics
	BatchSize int
	Now       func() time.Time
}

// NewTransactionTimeoutJob builds the job that expires overdue transactions.
func NewTransactionTimeoutJob(params TransactionTimeoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &transactionTimeoutJob{
		logg:      params.Logger,
		sweeper:   params.Sweeper,
		metrics:   params.Metrics,
		batchSize: batchSize,
		now:       now,
	}, nil
}

type transactionTimeoutJob struct {
	logg      *logger.Logger
	sweeper   timeoutSweeper
	metrics   *metrics.JobMetrics
	batchSize int
	now       func() time.Time
}

func (j *transactionTimeoutJob) Name() string { return "transaction-timeout" }

func (j *transactionTimeoutJob) Run(ctx context.Context) error {
	result, err := j.sweeper.SweepTimeouts(ctx, j.now().UTC(), j.batchSize)

	if j.metrics != nil {
		j.metrics.AddSweeperTransitions(enums.TransactionStatusCancelledTimeoutSeller.String(), result.SellerTimeouts)
		j.metrics.AddSweeperTransitions(enums.TransactionStatusCancelledTimeoutDelivery.String(), result.DeliveryTimeouts)
		j.metrics.AddSweeperTransitions(enums.TransactionStatusCompletedNoRating.String(), result.RatingClosures)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"seller_timeouts":   result.SellerTimeouts,
		"delivery_timeouts": result.DeliveryTimeouts,
		"rating_closures":   result.RatingClosures,
	})
	if result.Total() > 0 {
		j.logg.Info(logCtx, "expired overdue transactions")
	}
	return err
}
