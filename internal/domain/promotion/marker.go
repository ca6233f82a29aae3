package promotion

import (
	"offerengine/internal/core/id"
	"offerengine/internal/core/types"
	"offerengine/internal/domain/offer"
)

// marker counts units of a price detail consumed by one offer through one criteria.
// Quantity includes the attempt in progress; FinalizedQuantity only completed uses.
type marker struct {
	Offer             *offer.Offer
	CriteriaID        id.ID
	Quantity          int
	FinalizedQuantity int
	Price             types.Money
}

func (m *marker) sameAs(o *marker) bool {
	return m.Offer.ID == o.Offer.ID && m.CriteriaID == o.CriteriaID
}

func (m *marker) finalize() { m.FinalizedQuantity = m.Quantity }

func (m *marker) rollback() { m.Quantity = m.FinalizedQuantity }

// take moves up to n units out of m and returns how many moved.
func (m *marker) take(n int) int {
	n = min(n, m.Quantity)
	m.Quantity -= n
	m.FinalizedQuantity = min(m.FinalizedQuantity, m.Quantity)
	return n
}

// PromotionQualifier records units used to satisfy an offer's qualifying criteria.
type PromotionQualifier struct{ marker }

// PromotionDiscount records units that receive an offer's discount.
type PromotionDiscount struct{ marker }

func addQualifier(list []*PromotionQualifier, m marker) []*PromotionQualifier {
	for _, q := range list {
		if q.sameAs(&m) {
			q.Quantity += m.Quantity
			q.FinalizedQuantity += m.FinalizedQuantity
			return list
		}
	}
	return append(list, &PromotionQualifier{m})
}

func addDiscount(list []*PromotionDiscount, m marker) []*PromotionDiscount {
	for _, d := range list {
		if d.sameAs(&m) {
			d.Quantity += m.Quantity
			d.FinalizedQuantity += m.FinalizedQuantity
			return list
		}
	}
	return append(list, &PromotionDiscount{m})
}
