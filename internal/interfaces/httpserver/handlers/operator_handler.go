package handlers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/flockhq/flock-server/internal/domain/operator"
	"github.com/flockhq/flock-server/internal/utils/idgen"
	"github.com/flockhq/flock-server/internal/utils/platformerrors"
)

// OperatorHandler exposes the operator directory.
type OperatorHandler struct {
	operators operator.Repository
	log       zerolog.Logger
}

// NewOperatorHandler creates an operator handler.
func NewOperatorHandler(operators operator.Repository, log zerolog.Logger) *OperatorHandler {
	return &OperatorHandler{operators: operators, log: log}
}

// List returns every operator account.
func (h *OperatorHandler) List(ctx context.Context) ([]*operator.Operator, error) {
	return h.operators.List(ctx)
}

// Create registers an operator account.
func (h *OperatorHandler) Create(ctx context.Context, displayName, address string, roles []string) (*operator.Operator, error) {
	publicID, err := idgen.GenerateOperatorID()
	if err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerHandler,
			platformerrors.ErrorTypeInternal,
			"failed to generate operator id",
			err,
			"operator-id-generate",
		)
	}

	parsed := make([]operator.Role, 0, len(roles))
	for _, raw := range roles {
		role := operator.Role(raw)
		switch role {
		case operator.RoleAdmin, operator.RoleLead, operator.RoleMember:
			parsed = append(parsed, role)
		default:
			return nil, platformerrors.NewError(
				ctx,
				platformerrors.LayerHandler,
				platformerrors.ErrorTypeValidation,
				"unknown role: "+raw,
				nil,
				"operator-role-invalid",
			)
		}
	}

	now := time.Now().UTC()
	op := &operator.Operator{
		PublicID:    publicID,
		DisplayName: displayName,
		Address:     address,
		Roles:       parsed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.operators.Create(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}
