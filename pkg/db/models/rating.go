package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cartaviva/cartaviva-backend/pkg/enums"
)

// Rating is a one-per-role review attached to a transaction.
type Rating struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID uuid.UUID        `gorm:"column:transaction_id;type:uuid;not null;uniqueIndex:idx_ratings_txn_role,priority:1"`
	RaterID       uuid.UUID        `gorm:"column:rater_id;type:uuid;not null"`
	RateeID       uuid.UUID        `gorm:"column:ratee_id;type:uuid;not null;index"`
	Role          enums.RatingRole `gorm:"column:role;type:rating_role;not null;uniqueIndex:idx_ratings_txn_role,priority:2"`
	Score         int              `gorm:"column:score;not null"`
	Comment       *string          `gorm:"column:comment"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
}
