// Package access decides whether a user may view and interact with a
// market. The policy is a pure predicate over facts the engine only
// reads: market ownership, event membership, and explicit share grants.
package access

import (
	"context"

	"github.com/thehouse/wager-engine/internal/model"
	"github.com/thehouse/wager-engine/internal/store"
)

// UserDirectory answers identity questions the engine cannot: whether a
// resolved user ID belongs to a superuser. Authentication itself is the
// surrounding application's job; an empty user ID means unauthenticated.
type UserDirectory interface {
	IsSuperuser(ctx context.Context, userID string) (bool, error)
}

// StaticDirectory is a fixed userID → superuser map, for tests and
// single-binary deployments.
type StaticDirectory map[string]bool

func (d StaticDirectory) IsSuperuser(_ context.Context, userID string) (bool, error) {
	return d[userID], nil
}

// CanView reports whether the user may view the market:
// unauthenticated users never; superusers, the creator, and the house
// always; event members when the market belongs to an event; and users
// holding an explicit share grant. Evaluated fresh on every call.
func CanView(ctx context.Context, dir UserDirectory, st store.Store, userID string, m *model.Market) (bool, error) {
	if userID == "" {
		return false, nil
	}

	if dir != nil {
		super, err := dir.IsSuperuser(ctx, userID)
		if err != nil {
			return false, err
		}
		if super {
			return true, nil
		}
	}

	if userID == m.CreatorID || (m.HouseID != "" && userID == m.HouseID) {
		return true, nil
	}

	if m.EventID != "" {
		member, err := st.IsMember(ctx, m.EventID, userID)
		if err != nil {
			return false, err
		}
		if member {
			return true, nil
		}
	}

	return st.HasMarketShare(ctx, m.ID, userID)
}
