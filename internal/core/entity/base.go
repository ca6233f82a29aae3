package entity

import "context"

// Validatable is implemented by aggregates that check their own invariants
// without touching storage.
type Validatable interface {
	Validate(ctx context.Context) error
}
