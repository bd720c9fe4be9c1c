package transactions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cartaviva/cartaviva-backend/pkg/db/models"
	"github.com/cartaviva/cartaviva-backend/pkg/enums"
	"github.com/cartaviva/cartaviva-backend/pkg/pagination"
)

// Repository defines persistence operations for transaction tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ListForParticipant(ctx context.Context, userID uuid.UUID, params pagination.Params, filters ListFilters) (*TransactionList, error)
	UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to enums.TransactionStatus, updates map[string]any) (bool, error)
	FindTimedOut(ctx context.Context, status enums.TransactionStatus, deadlineColumn string, cutoff time.Time, limit int) ([]models.Transaction, error)
	CreateRating(ctx context.Context, rating *models.Rating) (*models.Rating, error)
	FindRatings(ctx context.Context, transactionID uuid.UUID) ([]models.Rating, error)
	CreateDispute(ctx context.Context, dispute *models.Dispute) (*models.Dispute, error)
	FindDisputeByTransaction(ctx context.Context, transactionID uuid.UUID) (*models.Dispute, error)
	UpdateDispute(ctx context.Context, disputeID uuid.UUID, updates map[string]any) error
}

// ListFilters describe the inputs supported by the transaction list.
type ListFilters struct {
	Status   *enums.TransactionStatus
	Role     string // "buyer", "seller" or "" for both
	DateFrom *time.Time
	DateTo   *time.Time
}

// TransactionList wraps the paginated rows plus the next page cursor.
type TransactionList struct {
	Transactions []models.Transaction `json:"transactions"`
	NextCursor   string               `json:"next_cursor,omitempty"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a transactions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Ratings").
		Preload("Dispute").
		Where("id = ?", id).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) ListForParticipant(ctx context.Context, userID uuid.UUID, params pagination.Params, filters ListFilters) (*TransactionList, error) {
	query := r.db.WithContext(ctx).Model(&models.Transaction{}).Preload("Items")

	switch filters.Role {
	case "buyer":
		query = query.Where("buyer_id = ?", userID)
	case "seller":
		query = query.Where("seller_id = ?", userID)
	default:
		query = query.Where("buyer_id = ? OR seller_id = ?", userID, userID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	limit := pagination.NormalizeLimit(params.Limit)
	var rows []models.Transaction
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	list := &TransactionList{Transactions: rows}
	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		list.NextCursor = pagination.NextCursor(true, last.CreatedAt, last.ID)
	}
	return list, nil
}

// UpdateStatusFrom performs the compare-and-swap every transition goes
// through. RowsAffected == 0 means another writer moved the row first.
func (r *repository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to enums.TransactionStatus, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	res := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindTimedOut(ctx context.Context, status enums.TransactionStatus, deadlineColumn string, cutoff time.Time, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Where(deadlineColumn+" < ?", cutoff).
		Order(deadlineColumn + " ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CreateRating(ctx context.Context, rating *models.Rating) (*models.Rating, error) {
	if err := r.db.WithContext(ctx).Create(rating).Error; err != nil {
		return nil, err
	}
	return rating, nil
}

func (r *repository) FindRatings(ctx context.Context, transactionID uuid.UUID) ([]models.Rating, error) {
	var ratings []models.Rating
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC").
		Find(&ratings).Error
	if err != nil {
		return nil, err
	}
	return ratings, nil
}

func (r *repository) CreateDispute(ctx context.Context, dispute *models.Dispute) (*models.Dispute, error) {
	if err := r.db.WithContext(ctx).Create(dispute).Error; err != nil {
		return nil, err
	}
	return dispute, nil
}

func (r *repository) FindDisputeByTransaction(ctx context.Context, transactionID uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&dispute).Error
	if err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *repository) UpdateDispute(ctx context.Context, disputeID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Dispute{}).
		Where("id = ?", disputeID).
		Updates(updates).Error
}
