package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-dm-relay/relay-service/internal/domain"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db  *gorm.DB
	ids *IDGenerator
	now func() time.Time
}

// NewGormMessageRepository creates a new GORM-backed message store.
func NewGormMessageRepository(db *gorm.DB, ids *IDGenerator) *GormMessageRepository {
	if ids == nil {
		ids = NewIDGenerator()
	}
	return &GormMessageRepository{
		db:  db,
		ids: ids,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *GormMessageRepository) Append(ctx context.Context, from, to, text string) (*domain.Message, error) {
	id, ts, err := r.ids.Next(r.now())
	if err != nil {
		return nil, err
	}

	model := domain.MessageModel{
		ID:        id,
		FromUser:  from,
		ToUser:    to,
		Text:      text,
		Timestamp: ts,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (r *GormMessageRepository) PendingFor(ctx context.Context, recipient, afterID string, limit int) ([]*domain.Message, error) {
	q := r.db.WithContext(ctx).
		Where("to_user = ? AND delivered = ?", recipient, false)
	if afterID != "" {
		q = q.Where("id > ?", afterID)
	}
	q = q.Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var models []domain.MessageModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	return toMessages(models), nil
}

func (r *GormMessageRepository) CountPending(ctx context.Context, recipient string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("to_user = ? AND delivered = ?", recipient, false).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// MarkDelivered flips the delivered flag by id. An already delivered
// message is left untouched and is not an error.
func (r *GormMessageRepository) MarkDelivered(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.MessageModel{}).
			Where("id = ? AND delivered = ?", id, false).
			Update("delivered", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			return nil
		}

		var count int64
		if err := tx.Model(&domain.MessageModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrMessageNotFound
		}
		return nil
	})
}

func (r *GormMessageRepository) History(ctx context.Context, userA, userB string) ([]*domain.Message, error) {
	var models []domain.MessageModel
	err := r.db.WithContext(ctx).
		Where("(from_user = ? AND to_user = ?) OR (from_user = ? AND to_user = ?)", userA, userB, userB, userA).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toMessages(models), nil
}

func toMessages(models []domain.MessageModel) []*domain.Message {
	out := make([]*domain.Message, 0, len(models))
	for i := range models {
		out = append(out, models[i].ToDomain())
	}
	return out
}

var _ MessageRepository = (*GormMessageRepository)(nil)
