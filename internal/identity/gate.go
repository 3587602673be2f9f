package identity

import "github.com/sdalgetty/funnel-app-sub003/internal/obs"

// Guard rejects mutations for view-only identities. Callers must pass the
// identity resolved for the current request, not one cached from an earlier
// one, so a mid-session switch takes effect immediately.
func Guard(id EffectiveIdentity) error {
	if id.ViewOnly {
		obs.ReadOnlyRejected()
		return ErrReadOnly
	}
	return nil
}
