package repository

import (
	"context"
	"errors"

	"github.com/halvard/modelwatch/internal/domain"
	"gorm.io/gorm"
)

// DealRepository resolves extracted entity names against the deals table.
type DealRepository struct {
	db *gorm.DB
}

// NewDealRepository creates a new DealRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *DealRepository: repository instance bound to db.
func NewDealRepository(db *gorm.DB) *DealRepository {
	return &DealRepository{db: db}
}

// ResolveEntity maps an extracted entity name to an existing deal ID.
// Absence of a matching deal is not an error; an empty ID is returned.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entityName: extracted entity name.
// Returns:
//   - string: deal ID, or empty when no deal matches.
//   - error: non-nil only on a query failure.
func (r *DealRepository) ResolveEntity(ctx context.Context, entityName string) (string, error) {
	var deal domain.Deal
	err := r.db.WithContext(ctx).First(&deal, "entity_name = ?", entityName).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return deal.ID, nil
}
