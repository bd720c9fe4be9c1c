package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/cartaviva/cartaviva-backend/pkg/enums"
)

// Dispute records a conflict raised against a transaction and its resolution.
type Dispute struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID  uuid.UUID             `gorm:"column:transaction_id;type:uuid;not null;uniqueIndex"`
	RaisedByID     uuid.UUID             `gorm:"column:raised_by_id;type:uuid;not null"`
	Type           enums.DisputeType     `gorm:"column:type;type:dispute_type;not null"`
	Severity       enums.DisputeSeverity `gorm:"column:severity;type:dispute_severity;not null"`
	Status         enums.DisputeStatus   `gorm:"column:status;type:dispute_status;not null;default:'open'"`
	Description    string                `gorm:"column:description;not null"`
	EvidenceURLs   pq.StringArray        `gorm:"column:evidence_urls;type:text[]"`
	Outcome        *enums.DisputeOutcome `gorm:"column:outcome;type:dispute_outcome"`
	ResolvedByID   *uuid.UUID            `gorm:"column:resolved_by_id;type:uuid"`
	ResolutionNote *string               `gorm:"column:resolution_note"`
	ResolvedAt     *time.Time            `gorm:"column:resolved_at"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
