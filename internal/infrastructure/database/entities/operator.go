package entities

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/flockhq/flock-server/internal/domain/operator"
)

// Operator represents the database schema for operator accounts.
type Operator struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	PublicID    string         `gorm:"type:varchar(50);uniqueIndex;not null"`
	DisplayName string         `gorm:"type:varchar(128);not null"`
	Address     string         `gorm:"type:varchar(64);uniqueIndex;not null"`
	Roles       datatypes.JSON `gorm:"type:jsonb"`
}

// TableName specifies the table name for Operator.
func (Operator) TableName() string {
	return "operators"
}

// NewSchemaOperator converts a domain operator to its entity.
func NewSchemaOperator(op *operator.Operator) *Operator {
	entity := &Operator{
		ID:          op.ID,
		PublicID:    op.PublicID,
		DisplayName: op.DisplayName,
		Address:     op.Address,
		CreatedAt:   op.CreatedAt,
		UpdatedAt:   op.UpdatedAt,
	}
	if len(op.Roles) > 0 {
		if data, err := json.Marshal(op.Roles); err == nil {
			entity.Roles = datatypes.JSON(data)
		}
	}
	return entity
}

// EtoD converts the database entity to its domain model.
func (o *Operator) EtoD() *operator.Operator {
	op := &operator.Operator{
		ID:          o.ID,
		PublicID:    o.PublicID,
		DisplayName: o.DisplayName,
		Address:     o.Address,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	if len(o.Roles) > 0 {
		var roles []operator.Role
		if err := json.Unmarshal(o.Roles, &roles); err == nil {
			op.Roles = roles
		}
	}
	return op
}
