// Package remote defines the port to the cloud identity/MFA service that
// follows the directory. Wire format and authentication belong to the
// adapter (see remote/duoapi); the reconciliation core only sees these types.
package remote

import (
	"context"

	"github.com/google/uuid"

	"f0oster/adsync/identity"
)

// Member is the payload for one user create or update.
type Member struct {
	ObjectGUID uuid.UUID
	Identity   identity.Identity

	// Scalar contact attributes selected from the directory. Empty values
	// are omitted from the wire call.
	RealName string
	Email    string
	Phone    string

	// GroupsToAdd / GroupsToRemove are remote-side sign-up group deltas.
	// Creates carry the full target set in GroupsToAdd.
	GroupsToAdd    []string
	GroupsToRemove []string
}

// Outcome is the per-item result of a batch call that succeeded as a whole.
// A rejected item (for example a delete of an already-removed user) does not
// fail its batch; the dispatcher logs it and leaves the cached view of that
// member untouched so the next pass retries.
type Outcome struct {
	Identity identity.Identity
	Rejected bool
	Reason   string
}

// Client is the remote identity port. A call returns an error only when the
// whole batch failed (transport or HTTP level, after the adapter's retry
// policy is exhausted); otherwise it returns one Outcome per submitted item.
type Client interface {
	CreateMany(ctx context.Context, members []Member) ([]Outcome, error)
	UpdateMany(ctx context.Context, members []Member) ([]Outcome, error)
	DeleteMany(ctx context.Context, identities []identity.Identity) ([]Outcome, error)

	// GetAllIdentities returns every identity the remote service currently
	// holds. Used by the drift scan only.
	GetAllIdentities(ctx context.Context) ([]identity.Identity, error)
}
