package operator

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	domain "github.com/flockhq/flock-server/internal/domain/operator"
	"github.com/flockhq/flock-server/internal/infrastructure/database/entities"
	"github.com/flockhq/flock-server/internal/utils/platformerrors"
)

// Repository persists operator accounts.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds an operator repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts the operator record.
func (r *Repository) Create(ctx context.Context, op *domain.Operator) error {
	entity := entities.NewSchemaOperator(op)

	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to create operator",
			err,
			"operator-create",
		)
	}

	op.ID = entity.ID
	op.CreatedAt = entity.CreatedAt
	op.UpdatedAt = entity.UpdatedAt
	return nil
}

// FindByPublicID fetches an operator by its public ID.
func (r *Repository) FindByPublicID(ctx context.Context, publicID string) (*domain.Operator, error) {
	return r.findOne(ctx, "public_id = ?", publicID, fmt.Sprintf("operator not found: %s", publicID))
}

// FindByAddress resolves an external chat address to an operator.
func (r *Repository) FindByAddress(ctx context.Context, address string) (*domain.Operator, error) {
	return r.findOne(ctx, "address = ?", address, "operator not found for address")
}

func (r *Repository) findOne(ctx context.Context, query string, arg any, notFoundMsg string) (*domain.Operator, error) {
	var entity entities.Operator
	if err := r.db.WithContext(ctx).Where(query, arg).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(
				ctx,
				platformerrors.LayerRepository,
				platformerrors.ErrorTypeNotFound,
				notFoundMsg,
				nil,
				"operator-not-found",
			)
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to fetch operator",
			err,
			"operator-fetch",
		)
	}
	return entity.EtoD(), nil
}

// List returns every operator, ordered by display name.
func (r *Repository) List(ctx context.Context) ([]*domain.Operator, error) {
	var rows []entities.Operator
	if err := r.db.WithContext(ctx).Order("display_name ASC").Find(&rows).Error; err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list operators",
			err,
			"operator-list",
		)
	}

	ops := make([]*domain.Operator, 0, len(rows))
	for i := range rows {
		ops = append(ops, rows[i].EtoD())
	}
	return ops, nil
}
