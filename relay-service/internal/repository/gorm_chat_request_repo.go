package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-dm-relay/pkg/database"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/domain"
)

// GormChatRequestRepository implements ChatRequestRepository using GORM.
type GormChatRequestRepository struct {
	db *gorm.DB
}

// NewGormChatRequestRepository creates a new GORM-backed request ledger.
func NewGormChatRequestRepository(db *gorm.DB) *GormChatRequestRepository {
	return &GormChatRequestRepository{db: db}
}

var activeOrBlocked = []string{
	string(domain.StatusPending),
	string(domain.StatusAccepted),
	string(domain.StatusBlocked),
}

// Create inserts a pending request. The pre-check reports blocked pairs and
// the partial unique index catches concurrent duplicates.
func (r *GormChatRequestRepository) Create(ctx context.Context, from, to string) (*domain.ChatRequest, error) {
	pairKey := domain.PairKey(from, to)
	model := domain.ChatRequestModel{
		ID:       uuid.New().String(),
		FromUser: from,
		ToUser:   to,
		PairKey:  pairKey,
		Status:   string(domain.StatusPending),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []domain.ChatRequestModel
		if err := tx.Where("pair_key = ? AND status IN ?", pairKey, activeOrBlocked).
			Find(&existing).Error; err != nil {
			return err
		}
		for _, e := range existing {
			if e.Status == string(domain.StatusBlocked) {
				return ErrPairBlocked
			}
		}
		if len(existing) > 0 {
			return ErrRequestExists
		}

		if err := tx.Create(&model).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return ErrRequestExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (r *GormChatRequestRepository) TransitionPending(ctx context.Context, from, to string, status domain.RequestStatus) (*domain.ChatRequest, error) {
	var model domain.ChatRequestModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.firstPending(tx, from, to, &model); err != nil {
			return err
		}

		result := tx.Model(&domain.ChatRequestModel{}).
			Where("id = ? AND status = ?", model.ID, string(domain.StatusPending)).
			Update("status", string(status))
		if result.Error != nil {
			if database.IsUniqueViolation(result.Error) {
				return ErrRequestExists
			}
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRequestNotFound
		}
		return tx.First(&model, "id = ?", model.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (r *GormChatRequestRepository) DeletePending(ctx context.Context, from, to string) (*domain.ChatRequest, error) {
	var model domain.ChatRequestModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.firstPending(tx, from, to, &model); err != nil {
			return err
		}

		result := tx.Where("id = ? AND status = ?", model.ID, string(domain.StatusPending)).
			Delete(&domain.ChatRequestModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRequestNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	model.Status = string(domain.StatusRejected)
	return model.ToDomain(), nil
}

func (r *GormChatRequestRepository) UpdateLatest(ctx context.Context, userA, userB string, status domain.RequestStatus) (*domain.ChatRequest, error) {
	var model domain.ChatRequestModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("pair_key = ?", domain.PairKey(userA, userB)).
			Order("created_at DESC").Order("id DESC").
			First(&model).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRequestNotFound
			}
			return err
		}
		if model.Status == string(status) {
			return nil
		}

		if err := tx.Model(&domain.ChatRequestModel{}).
			Where("id = ?", model.ID).
			Update("status", string(status)).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return ErrRequestExists
			}
			return err
		}
		return tx.First(&model, "id = ?", model.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (r *GormChatRequestRepository) ListPendingFor(ctx context.Context, username string) ([]*domain.ChatRequest, error) {
	var models []domain.ChatRequestModel
	err := r.db.WithContext(ctx).
		Where("to_user = ? AND status = ?", username, string(domain.StatusPending)).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toChatRequests(models), nil
}

func (r *GormChatRequestRepository) ListFor(ctx context.Context, username string) ([]*domain.ChatRequest, error) {
	var models []domain.ChatRequestModel
	err := r.db.WithContext(ctx).
		Where("from_user = ? OR to_user = ?", username, username).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toChatRequests(models), nil
}

func (r *GormChatRequestRepository) firstPending(tx *gorm.DB, from, to string, model *domain.ChatRequestModel) error {
	err := tx.Where("from_user = ? AND to_user = ? AND status = ?", from, to, string(domain.StatusPending)).
		First(model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRequestNotFound
	}
	return err
}

func toChatRequests(models []domain.ChatRequestModel) []*domain.ChatRequest {
	out := make([]*domain.ChatRequest, 0, len(models))
	for i := range models {
		out = append(out, models[i].ToDomain())
	}
	return out
}

var _ ChatRequestRepository = (*GormChatRequestRepository)(nil)
