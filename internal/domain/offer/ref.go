package offer

import (
	"context"
	"encoding/json"

	"offerengine/internal/core/id"
)

// Lookup resolves an offer by id.
type Lookup func(ctx context.Context, offerID id.ID) (*Offer, error)

// Ref is a lazily resolved reference to an offer: an id plus the value once loaded.
// The zero Ref points at nothing.
type Ref struct {
	id       id.ID
	resolved *Offer
}

// RefTo returns a resolved reference to o.
func RefTo(o *Offer) Ref {
	if o == nil {
		return Ref{}
	}
	return Ref{id: o.ID, resolved: o}
}

// RefByID returns an unresolved reference.
func RefByID(offerID id.ID) Ref {
	return Ref{id: offerID}
}

// ID returns the referenced offer id.
func (r Ref) ID() id.ID { return r.id }

// IsZero reports whether the reference points at nothing.
func (r Ref) IsZero() bool { return id.IsNil(r.id) }

// Get returns the cached offer, or nil when not resolved yet.
func (r Ref) Get() *Offer { return r.resolved }

// Resolve loads the offer through lookup on first use and caches it.
func (r *Ref) Resolve(ctx context.Context, lookup Lookup) (*Offer, error) {
	if r.resolved != nil || r.IsZero() {
		return r.resolved, nil
	}
	o, err := lookup(ctx, r.id)
	if err != nil {
		return nil, err
	}
	r.resolved = o
	return o, nil
}

// Rebind points the reference at a different offer version.
func (r *Ref) Rebind(o *Offer) {
	*r = RefTo(o)
}

// MarshalJSON writes the resolved offer, or just its id.
func (r Ref) MarshalJSON() ([]byte, error) {
	if r.resolved != nil {
		return json.Marshal(r.resolved)
	}
	if r.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]string{"id": r.id.String()})
}
