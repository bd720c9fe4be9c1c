package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/cartaviva/cartaviva-backend/internal/inventory"
	"github.com/cartaviva/cartaviva-backend/internal/transactions"
	"github.com/cartaviva/cartaviva-backend/pkg/enums"
	"github.com/cartaviva/cartaviva-backend/pkg/logger"
	"github.com/cartaviva/cartaviva-backend/pkg/outbox"
	"github.com/cartaviva/cartaviva-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ReservationExpiryJobParams configure the orphaned hold cleanup job.
type ReservationExpiryJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	TxnRepo   transactions.Repository
	Outbox    outboxEmitter
	BatchSize int
	Now       func() time.Time
}

// NewReservationExpiryJob builds the job that returns expired holds to stock.
// A hold normally dies with its transaction; this job catches the ones a
// crashed worker left behind.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.TxnRepo == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &reservationExpiryJob{
		logg:      params.Logger,
		db:        params.DB,
		txnRepo:   params.TxnRepo,
		outbox:    params.Outbox,
		batchSize: batchSize,
		now:       now,
	}, nil
}

type reservationExpiryJob struct {
	logg      *logger.Logger
	db        txRunner
	txnRepo   transactions.Repository
	outbox    outboxEmitter
	batchSize int
	now       func() time.Time
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

func (j *reservationExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()

	var transactionIDs []uuid.UUID
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		holds, err := inventory.FindExpired(ctx, tx, now, j.batchSize)
		if err != nil {
			return err
		}
		seen := map[uuid.UUID]bool{}
		for _, hold := range holds {
			if seen[hold.TransactionID] {
				continue
			}
			seen[hold.TransactionID] = true
			transactionIDs = append(transactionIDs, hold.TransactionID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("query expired holds: %w", err)
	}

	var errs error
	released := 0
	for _, transactionID := range transactionIDs {
		ok, err := j.releaseOrphan(ctx, transactionID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if ok {
			released++
		}
	}
	if released > 0 {
		j.logg.Info(j.logg.WithField(ctx, "released", released), "released orphaned holds")
	}
	return errs
}

// releaseOrphan frees the holds of one transaction, but only if that
// transaction already reached a terminal state. Holds on live transactions
// stay put until the lifecycle or the timeout sweep settles them.
func (j *reservationExpiryJob) releaseOrphan(ctx context.Context, transactionID uuid.UUID) (bool, error) {
	released := false
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.txnRepo.WithTx(tx)
		txn, err := repo.FindByID(ctx, transactionID)
		if err != nil {
			return err
		}
		if !txn.Status.IsTerminal() {
			return nil
		}

		stock, err := inventory.Release(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		released = len(stock) > 0
		for _, entry := range stock {
			if err := j.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventReservationReleased,
				AggregateType: enums.AggregateListing,
				AggregateID:   entry.ListingID,
				Data: payloads.ReservationReleasedEvent{
					ListingID:     entry.ListingID,
					TransactionID: transactionID,
					Qty:           entry.Qty,
					Reason:        "expired",
				},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return released, nil
}
