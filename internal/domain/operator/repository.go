package operator

import "context"

// Repository exposes read access to operator accounts.
type Repository interface {
	Create(ctx context.Context, op *Operator) error
	FindByPublicID(ctx context.Context, publicID string) (*Operator, error)
	// FindByAddress resolves an external chat address to an operator.
	// Returns a NotFound platform error when the address is not an operator's.
	FindByAddress(ctx context.Context, address string) (*Operator, error)
	List(ctx context.Context) ([]*Operator, error)
}
