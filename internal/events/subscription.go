package events

// SubscriptionHandle identifies a registration; pass it to Unsubscribe
type SubscriptionHandle struct {
	ID   string
	Kind Kind
}

// IsZero reports whether the handle was never issued
func (h SubscriptionHandle) IsZero() bool {
	return h.ID == ""
}

type subscription struct {
	id      string
	kind    Kind
	handler Handler
}

// appendCopy returns a new slice; published snapshots are never written to
func appendCopy(subs []*subscription, sub *subscription) []*subscription {
	next := make([]*subscription, len(subs), len(subs)+1)
	copy(next, subs)
	return append(next, sub)
}

// removeCopy returns a new slice without id, keeping registration order
func removeCopy(subs []*subscription, id string) []*subscription {
	next := make([]*subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			next = append(next, s)
		}
	}
	return next
}
