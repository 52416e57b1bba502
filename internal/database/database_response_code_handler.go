package database

import (
	"context"

	"shrike/internal/domain"

	"gorm.io/gorm/clause"
)

// InternResponseCode returns the registry entry for code, creating it on first
// sighting. Concurrent calls for the same code collapse to a single insert.
func (h *Handler) InternResponseCode(ctx context.Context, code string) (domain.ResponseCode, error) {
	value, err, _ := h.internGroup.Do(code, func() (any, error) {
		return h.internResponseCode(ctx, code)
	})
	if err != nil {
		return domain.ResponseCode{}, err
	}
	return value.(domain.ResponseCode), nil
}

func (h *Handler) internResponseCode(ctx context.Context, code string) (domain.ResponseCode, error) {
	entry := domain.ResponseCode{Code: code}
	err := h.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).
		Create(&entry).Error
	if err != nil {
		return domain.ResponseCode{}, err
	}

	if entry.ID != 0 {
		return entry, nil
	}

	// Lost the insert race, read back the row that won.
	var existing domain.ResponseCode
	if err := h.db.WithContext(ctx).Where("code = ?", code).First(&existing).Error; err != nil {
		return domain.ResponseCode{}, err
	}
	return existing, nil
}

// ListResponseCodes returns every registered code with the addresses it flags.
// Linked addresses carry their own code sets so API listings can render the
// full picture in one call.
func (h *Handler) ListResponseCodes(ctx context.Context) ([]domain.ResponseCode, error) {
	var codes []domain.ResponseCode
	err := h.db.WithContext(ctx).
		Preload("IPDetails.ResponseCodes").
		Order("id").
		Find(&codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}
