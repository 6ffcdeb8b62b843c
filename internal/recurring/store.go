package recurring

import (
	"context"
	"errors"

	"pocketledger/internal/models"
)

// ErrAlreadyMaterialized is returned by InsertInstance when the template
// already has an instance for the period.
var ErrAlreadyMaterialized = errors.New("recurring: instance already exists for period")

// ErrTxConflict is wrapped by WithinTx when the transaction lost to a
// concurrent one and was rolled back. Running it again is safe.
var ErrTxConflict = errors.New("recurring: transaction conflicted with a concurrent run")

// Store is the persistence the materializer needs.
type Store interface {
	// ListTemplates returns the user's recurring templates.
	ListTemplates(ctx context.Context, userID string) ([]models.Expense, error)
	// FindLastInstance returns the most recent instance generated from tpl,
	// or nil when there is none.
	FindLastInstance(ctx context.Context, tpl *models.Expense) (*models.Expense, error)
	InsertInstance(ctx context.Context, instance *models.Expense) error
	// WithinTx runs fn against a Store bound to a single serializable transaction.
	// A serialization conflict is reported as an error wrapping ErrTxConflict.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
