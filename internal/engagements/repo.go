package engagements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/servigo-app/servigo-backend/pkg/db/models"
	"github.com/servigo-app/servigo-backend/pkg/enums"
	"github.com/servigo-app/servigo-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an engagements repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, engagement *models.Engagement) error {
	return r.db.WithContext(ctx).Create(engagement).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Engagement, error) {
	var engagement models.Engagement
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&engagement).Error
	if err != nil {
		return nil, err
	}
	return &engagement, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Engagement, error) {
	var engagement models.Engagement
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&engagement).Error
	if err != nil {
		return nil, err
	}
	return &engagement, nil
}

func (r *repository) Save(ctx context.Context, engagement *models.Engagement) error {
	return r.db.WithContext(ctx).Save(engagement).Error
}

func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*EngagementList, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).
		Where("customer_id = ? OR provider_id = ?", userID, userID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var items []models.Engagement
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}

	list := &EngagementList{Items: items}
	pageSize := pagination.NormalizeLimit(params.Limit)
	if len(items) > pageSize {
		list.Items = items[:pageSize]
		last := list.Items[pageSize-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return list, nil
}

// activeSlotStatuses are the statuses that occupy a provider's calendar.
var activeSlotStatuses = []enums.EngagementStatus{
	enums.EngagementStatusConfirmed,
	enums.EngagementStatusPaid,
	enums.EngagementStatusProviderEnRoute,
	enums.EngagementStatusInProgress,
}

func (r *repository) CountProviderSlotConflicts(ctx context.Context, providerID uuid.UUID, from, to time.Time, excludeID *uuid.UUID) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Engagement{}).
		Where("provider_id = ?", providerID).
		Where("status IN ?", activeSlotStatuses).
		Where("appointment_at > ? AND appointment_at < ?", from, to)
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindAutoReleasable does not exclude rows the customer already rated: a
// one-sided rating never releases funds, so those rows must still close when
// the window lapses. AutoClose settles at most once either way.
func (r *repository) FindAutoReleasable(ctx context.Context, confirmedBefore time.Time, limit int) ([]models.Engagement, error) {
	var items []models.Engagement
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.EngagementStatusCompletedByCustomer).
		Where("payment_status = ?", enums.PaymentStatusHeldForRelease).
		Where("customer_confirmed_at IS NOT NULL AND customer_confirmed_at <= ?", confirmedBefore).
		Order("customer_confirmed_at ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindFallbackReleasable(ctx context.Context, limit int) ([]models.Engagement, error) {
	var items []models.Engagement
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.EngagementStatusClosedWithRating).
		Where("payment_status = ?", enums.PaymentStatusHeldForRelease).
		Order("updated_at ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindFrozenBefore(ctx context.Context, frozenBefore time.Time) ([]models.Engagement, error) {
	var items []models.Engagement
	err := r.db.WithContext(ctx).
		Where("payment_status = ?", enums.PaymentStatusFrozenByDispute).
		Where("updated_at <= ?", frozenBefore).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) CreateCancellationRecord(ctx context.Context, record *models.CancellationRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}
