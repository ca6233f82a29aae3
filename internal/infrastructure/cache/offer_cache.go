package cache

import (
	"context"
	"strings"
	"sync"

	"offerengine/internal/core/id"
	"offerengine/internal/domain/offer"
	"offerengine/pkg/logger"
)

var _ offer.Repository = (*OfferCache)(nil)

// OfferCache decorates an offer repository with an in-memory copy of offers
// and of the automatic offer list. EffectiveID is never cached since it takes
// a row lock.
//
// NOTIFY offers_changed with an offer id payload drops that offer and the
// automatic list; an empty payload drops everything. Loads that overlap an
// invalidation are returned to the caller but not stored.
type OfferCache struct {
	next offer.Repository

	mu        sync.RWMutex
	byID      map[id.ID]*offer.Offer
	automatic []*offer.Offer
	loaded    bool
	gen       uint64
}

// NewOfferCache wraps next.
func NewOfferCache(next offer.Repository) *OfferCache {
	return &OfferCache{
		next: next,
		byID: make(map[id.ID]*offer.Offer),
	}
}

// Attach subscribes the cache to offer change notifications.
func (c *OfferCache) Attach(l *Listener) {
	l.Subscribe(ChannelOffersChanged, func(ctx context.Context, _, payload string) {
		c.Invalidate(ctx, payload)
	})
}

// GetByID returns the cached offer or loads it.
func (c *OfferCache) GetByID(ctx context.Context, offerID id.ID) (*offer.Offer, error) {
	c.mu.RLock()
	o, ok := c.byID[offerID]
	gen := c.gen
	c.mu.RUnlock()
	if ok {
		return o, nil
	}

	o, err := c.next.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.gen == gen {
		c.byID[offerID] = o
	}
	c.mu.Unlock()
	return o, nil
}

// ListAutomatic returns the cached automatic offers or loads them.
func (c *OfferCache) ListAutomatic(ctx context.Context) ([]*offer.Offer, error) {
	c.mu.RLock()
	if c.loaded {
		list := append([]*offer.Offer(nil), c.automatic...)
		c.mu.RUnlock()
		return list, nil
	}
	gen := c.gen
	c.mu.RUnlock()

	list, err := c.next.ListAutomatic(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.automatic = list
		c.loaded = true
		for _, o := range list {
			c.byID[o.ID] = o
		}
	}
	c.mu.Unlock()

	logger.Debug(ctx, "loaded automatic offers", "count", len(list))
	return append([]*offer.Offer(nil), list...), nil
}

func (c *OfferCache) EffectiveID(ctx context.Context, offerID id.ID) (id.ID, error) {
	return c.next.EffectiveID(ctx, offerID)
}

// Invalidate drops the offer named by payload, or everything when payload is
// empty or not an offer id.
func (c *OfferCache) Invalidate(ctx context.Context, payload string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.automatic = nil
	c.loaded = false

	offerID, err := id.Parse(strings.TrimSpace(payload))
	if err != nil {
		c.byID = make(map[id.ID]*offer.Offer)
		logger.Debug(ctx, "offer cache cleared")
		return
	}
	delete(c.byID, offerID)
	logger.Debug(ctx, "offer evicted from cache", "offer_id", offerID)
}
