package domain

// Lifecycle is derived from the status map on every read and is never stored.
// A deleted listing has no lifecycle: every read returns ErrListingNotFound.
type Lifecycle string

const (
	LifecycleCreated      Lifecycle = "created"
	LifecycleDistributing Lifecycle = "distributing"
	LifecycleDistributed  Lifecycle = "distributed"
)

func LifecycleOf(l *Listing) Lifecycle {
	if len(l.Marketplaces) == 0 {
		return LifecycleDistributed
	}
	if len(l.Status) == 0 {
		return LifecycleCreated
	}
	for _, name := range l.Marketplaces {
		st, ok := l.Status[name]
		if !ok || !st.State.IsTerminal() {
			return LifecycleDistributing
		}
	}
	return LifecycleDistributed
}

// CanMarkPending reports whether an entry may be (re)set to pending: it must be
// absent or failed.
func CanMarkPending(current MarketplaceStatus, exists bool) bool {
	return !exists || current.State == StatusFailed
}

// ApplyStatusUpdate validates a terminal write against the current entry and
// returns the new entry.
func ApplyStatusUpdate(current MarketplaceStatus, exists bool, upd StatusUpdate) (MarketplaceStatus, error) {
	if !upd.Status.IsTerminal() {
		return current, ErrInvalidTransition
	}
	if !exists {
		return current, ErrInvalidTransition
	}
	if upd.Attempt < current.Attempt {
		return current, ErrStaleUpdate
	}
	if upd.Attempt > current.Attempt {
		// a terminal write can only follow its own pending reset
		return current, ErrInvalidTransition
	}
	current.State = upd.Status
	current.Reason = upd.Reason
	current.ExternalID = upd.ExternalID
	return current, nil
}
