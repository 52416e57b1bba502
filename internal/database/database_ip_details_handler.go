package database

import (
	"context"
	"errors"
	"time"

	"shrike/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrIPDetailsNotFound marks a query for an address that was never enqueued.
var ErrIPDetailsNotFound = errors.New("ip details not found")

// GetOrCreateIPDetails fetches the record for address, creating an empty one
// (no associated codes) when absent. Insert races resolve to the winning row.
func (h *Handler) GetOrCreateIPDetails(ctx context.Context, address string) (domain.IPDetails, error) {
	record := domain.IPDetails{IPAddress: address}
	err := h.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ip_address"}},
			DoNothing: true,
		}).
		Create(&record).Error
	if err != nil {
		return domain.IPDetails{}, err
	}

	if record.ID != 0 {
		return record, nil
	}

	var existing domain.IPDetails
	if err := h.db.WithContext(ctx).Where("ip_address = ?", address).First(&existing).Error; err != nil {
		return domain.IPDetails{}, err
	}
	return existing, nil
}

// ReplaceResponseCodes swaps the record's association set for codes and
// refreshes updated_at. The swap runs in one transaction so readers never
// observe a partially updated set.
func (h *Handler) ReplaceResponseCodes(ctx context.Context, details *domain.IPDetails, codes []domain.ResponseCode) error {
	if details == nil || details.ID == 0 {
		return errors.New("database: replace response codes requires a persisted record")
	}

	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		association := tx.Model(details).Association("ResponseCodes")
		if len(codes) == 0 {
			if err := association.Clear(); err != nil {
				return err
			}
		} else if err := association.Replace(&codes); err != nil {
			return err
		}

		return tx.Model(details).Update("updated_at", time.Now()).Error
	})
}

// FindIPDetails returns the record for address with its current code set.
func (h *Handler) FindIPDetails(ctx context.Context, address string) (domain.IPDetails, error) {
	var details domain.IPDetails
	err := h.db.WithContext(ctx).
		Preload("ResponseCodes").
		Where("ip_address = ?", address).
		First(&details).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.IPDetails{}, ErrIPDetailsNotFound
		}
		return domain.IPDetails{}, err
	}
	return details, nil
}

// UpdateIPDetailsGeo stores GeoIP enrichment for the record. Empty values are
// skipped so a missing database never wipes previously known data.
func (h *Handler) UpdateIPDetailsGeo(ctx context.Context, details *domain.IPDetails, country, asnOrg string) error {
	if details == nil || details.ID == 0 {
		return errors.New("database: geo update requires a persisted record")
	}

	updates := make(map[string]any, 2)
	if country != "" && country != details.Country {
		updates["country"] = country
	}
	if asnOrg != "" && asnOrg != details.ASNOrg {
		updates["asn_org"] = asnOrg
	}
	if len(updates) == 0 {
		return nil
	}

	if err := h.db.WithContext(ctx).Model(details).Updates(updates).Error; err != nil {
		return err
	}
	return nil
}
