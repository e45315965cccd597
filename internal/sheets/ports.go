package sheets

import (
	"context"

	"cashflow/internal/core"
)

// Ports for outbound adapters.
type (
	// ProjectionWriter publishes an account's projected transactions to an
	// external surface, replacing whatever was written before.
	ProjectionWriter interface {
		WriteProjection(ctx context.Context, accountID string, txns []core.GeneratedTransaction) (ref string, err error)
	}
)
