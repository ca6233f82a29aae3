package promotion

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"offerengine/internal/core/apperror"
	"offerengine/internal/core/id"
	"offerengine/internal/core/tx"
	"offerengine/internal/domain/offer"
	"offerengine/internal/domain/order"
	"offerengine/pkg/logger"
)

// ApplyOptions are per-call switches of a pricing run.
type ApplyOptions struct {
	// PromotionsEnabled false makes the call return the order untouched.
	PromotionsEnabled bool
}

// DefaultApplyOptions enables promotion calculation.
func DefaultApplyOptions() ApplyOptions {
	return ApplyOptions{PromotionsEnabled: true}
}

// RunRecorder stores an audit trail of completed pricing runs.
type RunRecorder interface {
	RecordPricingRun(ctx context.Context, o *order.Order, kind string, offers []*offer.Offer) error
}

// UsageRecorder records offer redemptions when an order is checked out.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, o *order.Order, offerID id.ID, codeID *id.ID) error
}

// Dependencies are the collaborators of Service.
type Dependencies struct {
	Offers         offer.Repository
	Codes          offer.CodeRepository
	CustomerOffers offer.CustomerOfferRepository
	Usage          offer.UsageCounter
	Orders         order.Repository
	TxManager      tx.RetryingManager

	// Optional.
	Rules         RuleEvaluator
	Extension     OfferListExtension
	RunRecorder   RunRecorder
	UsageRecorder UsageRecorder
	Meter         metric.Meter
	Now           func() time.Time
}

// Service is the entry point of the promotion engine.
type Service struct {
	offers         offer.Repository
	codes          offer.CodeRepository
	customerOffers offer.CustomerOfferRepository
	usage          offer.UsageCounter
	orders         order.Repository
	txManager      tx.RetryingManager
	extension      OfferListExtension
	runRecorder    RunRecorder
	usageRecorder  UsageRecorder

	factory        *ItemFactory
	orderProcessor *OrderOfferProcessor
	itemProcessor  *ItemOfferProcessor
	fgProcessor    *FulfillmentGroupOfferProcessor

	metrics *runMetrics
	now     func() time.Time
}

// NewService wires the processors around deps.
func NewService(cfg Config, deps Dependencies) *Service {
	rules := deps.Rules
	if rules == nil {
		rules = MatchAll
	}
	ext := deps.Extension
	if ext == nil {
		ext = NoopExtension{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	txm := deps.TxManager
	if txm == nil {
		txm = tx.Direct
	}

	utils := NewUtilities(cfg, rules)
	orderProcessor := NewOrderOfferProcessor(cfg, utils, rules, now)

	return &Service{
		offers:         deps.Offers,
		codes:          deps.Codes,
		customerOffers: deps.CustomerOffers,
		usage:          deps.Usage,
		orders:         deps.Orders,
		txManager:      txm,
		extension:      ext,
		runRecorder:    deps.RunRecorder,
		usageRecorder:  deps.UsageRecorder,
		factory:        NewItemFactory(),
		orderProcessor: orderProcessor,
		itemProcessor:  NewItemOfferProcessor(cfg, utils, rules, orderProcessor),
		fgProcessor:    NewFulfillmentGroupOfferProcessor(cfg, utils, rules),
		metrics:        newRunMetrics(deps.Meter),
		now:            now,
	}
}

// --- Candidate offers ---

// offerSet keeps offers unique by id in first-seen order.
type offerSet struct {
	list []*offer.Offer
	seen map[id.ID]bool
}

func newOfferSet() *offerSet {
	return &offerSet{seen: make(map[id.ID]bool)}
}

func (s *offerSet) contains(o *offer.Offer) bool { return o != nil && s.seen[o.ID] }

func (s *offerSet) add(o *offer.Offer) {
	if o == nil || s.seen[o.ID] {
		return
	}
	s.seen[o.ID] = true
	s.list = append(s.list, o)
}

// BuildOfferListForOrder collects customer offers, offers behind the order's
// active codes and automatic offers, unique by id in that order, each within
// its usage limits, then lets the extension filter the list.
func (s *Service) BuildOfferListForOrder(ctx context.Context, o *order.Order) ([]*offer.Offer, error) {
	ctx, span := tracer.Start(ctx, "promotion.BuildOfferListForOrder",
		trace.WithAttributes(attribute.String("order.id", o.ID.String())))
	defer span.End()

	offers := newOfferSet()

	if o.CustomerID != "" {
		customerOffers, err := s.customerOffers.ListByCustomer(ctx, o.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("list customer offers: %w", err)
		}
		for _, co := range customerOffers {
			off, err := co.Offer.Resolve(ctx, s.offers.GetByID)
			if err != nil {
				return nil, fmt.Errorf("resolve customer offer %s: %w", co.ID, err)
			}
			if off == nil || offers.contains(off) {
				continue
			}
			ok, err := s.VerifyMaxCustomerUsageThreshold(ctx, o, off)
			if err != nil {
				return nil, err
			}
			if ok {
				offers.add(off)
			}
		}
	}

	codes, err := s.RefreshOfferCodesIfApplicable(ctx, o)
	if err != nil {
		return nil, err
	}
	for _, code := range s.removeOutOfDateOfferCodes(codes) {
		ok, err := s.VerifyMaxCustomerUsageThresholdForCode(ctx, o, code)
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Debug(ctx, "offer code over usage limit", "code", code.Code, "order_id", o.ID)
			continue
		}
		offers.add(code.Offer.Get())

		extra, err := s.extension.AddAdditionalOffersForCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("additional offers for code %s: %w", code.Code, err)
		}
		for _, off := range extra {
			offers.add(off)
		}
	}

	automatic, err := s.offers.ListAutomatic(ctx)
	if err != nil {
		return nil, fmt.Errorf("list automatic offers: %w", err)
	}
	for _, off := range automatic {
		if offers.contains(off) {
			continue
		}
		ok, err := s.VerifyMaxCustomerUsageThreshold(ctx, o, off)
		if err != nil {
			return nil, err
		}
		if ok {
			offers.add(off)
		}
	}

	result, err := s.extension.ApplyAdditionalFilters(ctx, offers.list, o)
	if err != nil {
		return nil, fmt.Errorf("apply offer filters: %w", err)
	}
	span.SetAttributes(attribute.Int("offers.count", len(result)))
	return result, nil
}

// removeOutOfDateOfferCodes returns the codes that are active now and still
// point at an offer.
func (s *Service) removeOutOfDateOfferCodes(codes []*offer.OfferCode) []*offer.OfferCode {
	now := s.now()
	out := make([]*offer.OfferCode, 0, len(codes))
	for _, c := range codes {
		if c.IsActive(now) && c.Offer.Get() != nil {
			out = append(out, c)
		}
	}
	return out
}

// RefreshOfferCodesIfApplicable points every code attached to o at the offer
// version currently in effect. The lookups run in one transaction that is
// retried when a lock cannot be acquired.
func (s *Service) RefreshOfferCodesIfApplicable(ctx context.Context, o *order.Order) ([]*offer.OfferCode, error) {
	codes := o.AddedOfferCodes
	if len(codes) == 0 {
		return codes, nil
	}

	err := s.txManager.RunWithLockRetry(ctx, func(ctx context.Context) error {
		for _, code := range codes {
			if code.Offer.IsZero() {
				continue
			}
			effectiveID, err := s.offers.EffectiveID(ctx, code.Offer.ID())
			if err != nil {
				return fmt.Errorf("effective offer for code %s: %w", code.Code, err)
			}
			if effectiveID == code.Offer.ID() && code.Offer.Get() != nil {
				continue
			}
			current, err := s.offers.GetByID(ctx, effectiveID)
			if err != nil {
				return fmt.Errorf("load offer %s for code %s: %w", effectiveID, code.Code, err)
			}
			if effectiveID != code.Offer.ID() {
				logger.Debug(ctx, "offer code rebound to current offer version",
					"code", code.Code, "from", code.Offer.ID(), "to", effectiveID)
			}
			code.Offer.Rebind(current)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// VerifyMaxCustomerUsageThreshold reports whether the order's customer (or
// account) is still under the offer's per-customer limit.
func (s *Service) VerifyMaxCustomerUsageThreshold(ctx context.Context, o *order.Order, off *offer.Offer) (bool, error) {
	if !off.IsLimitedUsePerCustomer() {
		return true, nil
	}

	var (
		uses int64
		err  error
	)
	if off.MaxUsesStrategy == offer.MaxUsesByAccount {
		uses, err = s.usage.CountUsesByAccount(ctx, o.ID, o.AccountID, off.ID, off.MinimumDaysPerUsage)
	} else {
		uses, err = s.usage.CountUsesByCustomer(ctx, o.ID, o.CustomerID, off.ID, off.MinimumDaysPerUsage)
	}
	if err != nil {
		return false, fmt.Errorf("count offer uses: %w", err)
	}
	return uses < int64(off.MaxUsesPerCustomer), nil
}

// VerifyMaxCustomerUsageThresholdForCode checks the code's own limit and then
// the limit of its offer.
func (s *Service) VerifyMaxCustomerUsageThresholdForCode(ctx context.Context, o *order.Order, code *offer.OfferCode) (bool, error) {
	if code.IsLimitedUse() {
		uses, err := s.usage.CountOfferCodeUses(ctx, o.ID, code.ID)
		if err != nil {
			return false, fmt.Errorf("count offer code uses: %w", err)
		}
		if uses >= int64(code.MaxUses) {
			return false, nil
		}
	}
	off, err := code.Offer.Resolve(ctx, s.offers.GetByID)
	if err != nil {
		return false, fmt.Errorf("resolve offer for code %s: %w", code.Code, err)
	}
	if off == nil {
		return false, nil
	}
	return s.VerifyMaxCustomerUsageThreshold(ctx, o, off)
}

// --- Pricing runs ---

// ApplyAndSaveOffersToOrder applies order and item offers to o, saves it and
// returns the saved order. Fulfillment group adjustments are left untouched.
func (s *Service) ApplyAndSaveOffersToOrder(ctx context.Context, offers []*offer.Offer, o *order.Order, opts ApplyOptions) (*order.Order, error) {
	if !opts.PromotionsEnabled {
		return o, nil
	}
	ctx, span := tracer.Start(ctx, "promotion.ApplyAndSaveOffersToOrder",
		trace.WithAttributes(
			attribute.String("order.id", o.ID.String()),
			attribute.Int("offers.candidates", len(offers)),
		))
	defer span.End()
	s.metrics.run(ctx, "order_item")

	po := s.factory.CreatePromotableOrder(o, false)
	filtered := s.orderProcessor.FilterOffers(ctx, offers, o)
	if len(filtered) == 0 {
		logger.Debug(ctx, "no offers applicable to order", "order_id", o.ID)
	} else {
		orderOffers, itemOffers := s.itemProcessor.FilterOffers(ctx, po, filtered)
		if len(orderOffers) > 0 || len(itemOffers) > 0 {
			s.itemProcessor.ApplyAndCompareOrderAndItemOffers(ctx, po, orderOffers, itemOffers)
		}
	}
	s.orderProcessor.SynchronizeAdjustmentsAndPrices(ctx, po)

	s.verifyAdjustments(ctx, o, true)
	o.SubTotal = o.CalculateSubTotal()
	o.FinalizeItemPrices()

	saved, err := s.save(ctx, o, "order_item", filtered)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if s.verifyAdjustments(ctx, saved, false) {
		if saved, err = s.save(ctx, saved, "order_item", filtered); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	s.metrics.offersApplied(ctx, "order_item", len(uniqueOfferIDs(saved)))
	return saved, nil
}

// ApplyAndSaveFulfillmentGroupOffersToOrder applies fulfillment group offers on
// top of the order's existing item and order adjustments and saves the order.
func (s *Service) ApplyAndSaveFulfillmentGroupOffersToOrder(ctx context.Context, offers []*offer.Offer, o *order.Order, opts ApplyOptions) (*order.Order, error) {
	if !opts.PromotionsEnabled {
		return o, nil
	}
	ctx, span := tracer.Start(ctx, "promotion.ApplyAndSaveFulfillmentGroupOffersToOrder",
		trace.WithAttributes(attribute.String("order.id", o.ID.String())))
	defer span.End()
	s.metrics.run(ctx, "fulfillment_group")

	applied, err := s.GetUniqueOffersFromOrder(ctx, o)
	if err != nil {
		return nil, err
	}
	po := s.factory.CreatePromotableOrder(o, true, append(applied, offers...)...)

	possible := make([]*offer.Offer, 0, len(offers))
	for _, off := range offers {
		if off != nil && off.Type == offer.TypeFulfillmentGroup {
			possible = append(possible, off)
		}
	}
	filtered := s.orderProcessor.FilterOffers(ctx, possible, o)

	var candidates []*PromotableCandidateFulfillmentGroupOffer
	for _, off := range filtered {
		candidates = append(candidates, s.fgProcessor.FilterFulfillmentGroupLevelOffer(ctx, po, off)...)
	}
	if len(candidates) > 0 {
		s.fgProcessor.ApplyAllFulfillmentGroupOffers(ctx, candidates, po)
	}
	s.fgProcessor.CalculateFulfillmentGroupTotal(po)
	s.orderProcessor.SynchronizeAdjustmentsAndPrices(ctx, po)
	o.SubTotal = o.CalculateSubTotal()
	o.FinalizeItemPrices()

	saved, err := s.save(ctx, o, "fulfillment_group", filtered)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return saved, nil
}

// PriceOrder builds the offer list for o and runs the item/order pass followed
// by the fulfillment group pass.
func (s *Service) PriceOrder(ctx context.Context, o *order.Order, opts ApplyOptions) (*order.Order, error) {
	if !opts.PromotionsEnabled {
		return o, nil
	}
	offers, err := s.BuildOfferListForOrder(ctx, o)
	if err != nil {
		return nil, err
	}
	priced, err := s.ApplyAndSaveOffersToOrder(ctx, offers, o, opts)
	if err != nil {
		return nil, err
	}
	return s.ApplyAndSaveFulfillmentGroupOffersToOrder(ctx, offers, priced, opts)
}

func (s *Service) save(ctx context.Context, o *order.Order, kind string, offers []*offer.Offer) (*order.Order, error) {
	var saved *order.Order
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		saved, err = s.orders.Save(ctx, o)
		if err != nil {
			return err
		}
		if s.runRecorder != nil {
			return s.runRecorder.RecordPricingRun(ctx, saved, kind, offers)
		}
		return nil
	})
	if err != nil {
		if appErr, ok := apperror.AsAppError(err); ok && appErr.Code == apperror.CodeConcurrentModification {
			return nil, err
		}
		return nil, apperror.NewPricing(err).WithDetail("order_id", o.ID.String())
	}

	logger.Info(ctx, "order priced",
		"order_id", saved.ID,
		"kind", kind,
		"sub_total", saved.SubTotal.String(),
		"order_adjustments", len(saved.Adjustments),
	)
	return saved, nil
}

// verifyAdjustments removes every price detail adjustment that repeats an
// offer already adjusting the same detail. Reports whether anything changed.
func (s *Service) verifyAdjustments(ctx context.Context, o *order.Order, beforeSave bool) bool {
	madeChange := false
	for _, it := range o.Items {
		for _, pd := range it.PriceDetails {
			if len(pd.Adjustments) < 2 {
				continue
			}
			seen := make(map[id.ID]*order.PriceDetailAdjustment, len(pd.Adjustments))
			kept := make([]*order.PriceDetailAdjustment, 0, len(pd.Adjustments))
			for _, adj := range pd.Adjustments {
				if first, dup := seen[adj.OfferID]; dup {
					logger.Debug(ctx, "detected adjustment collision",
						"before_save", beforeSave,
						"kept_id", first.ID,
						"removed_id", adj.ID,
						"offer_id", adj.OfferID,
					)
					s.metrics.collision(ctx, beforeSave)
					madeChange = true
					continue
				}
				seen[adj.OfferID] = adj
				kept = append(kept, adj)
			}
			pd.Adjustments = kept
		}
	}
	return madeChange
}

// --- Lookups ---

// FindOfferByID returns the offer with offerID.
func (s *Service) FindOfferByID(ctx context.Context, offerID id.ID) (*offer.Offer, error) {
	return s.offers.GetByID(ctx, offerID)
}

// FindOfferCodeByID returns the code with codeID.
func (s *Service) FindOfferCodeByID(ctx context.Context, codeID id.ID) (*offer.OfferCode, error) {
	return s.codes.GetByID(ctx, codeID)
}

// FindOfferCodesByIDs returns the codes that exist among codeIDs, in input order.
func (s *Service) FindOfferCodesByIDs(ctx context.Context, codeIDs []id.ID) ([]*offer.OfferCode, error) {
	out := make([]*offer.OfferCode, 0, len(codeIDs))
	for _, codeID := range codeIDs {
		c, err := s.codes.GetByID(ctx, codeID)
		if apperror.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// LookupOfferByCode returns the offer bound to code.
func (s *Service) LookupOfferByCode(ctx context.Context, code string) (*offer.Offer, error) {
	oc, err := s.codes.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return oc.Offer.Resolve(ctx, s.offers.GetByID)
}

// LookupOfferCodeByCode returns the active binding of code.
func (s *Service) LookupOfferCodeByCode(ctx context.Context, code string) (*offer.OfferCode, error) {
	return s.codes.GetByCode(ctx, code)
}

// LookupAllOfferCodesByCode returns every binding of code.
func (s *Service) LookupAllOfferCodesByCode(ctx context.Context, code string) ([]*offer.OfferCode, error) {
	return s.codes.ListByCode(ctx, code)
}

// LookupAllOffersByCode returns the offers of every binding of code.
func (s *Service) LookupAllOffersByCode(ctx context.Context, code string) ([]*offer.Offer, error) {
	codes, err := s.codes.ListByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	out := make([]*offer.Offer, 0, len(codes))
	for _, c := range codes {
		off, err := c.Offer.Resolve(ctx, s.offers.GetByID)
		if err != nil {
			return nil, err
		}
		if off != nil {
			out = append(out, off)
		}
	}
	return out, nil
}

// BuildOfferCodeListForCustomer returns extension-provided codes that are
// active and within usage limits for o's customer.
func (s *Service) BuildOfferCodeListForCustomer(ctx context.Context, o *order.Order) ([]*offer.OfferCode, error) {
	codes, err := s.extension.BuildOfferCodeListForCustomer(ctx, o.CustomerID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]*offer.OfferCode, 0, len(codes))
	for _, c := range codes {
		if !c.IsActive(now) {
			continue
		}
		ok, err := s.VerifyMaxCustomerUsageThresholdForCode(ctx, o, c)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func uniqueOfferIDs(o *order.Order) []id.ID {
	var out []id.ID
	seen := make(map[id.ID]bool)
	add := func(v id.ID) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, a := range o.Adjustments {
		add(a.OfferID)
	}
	for _, it := range o.Items {
		for _, pd := range it.PriceDetails {
			for _, a := range pd.Adjustments {
				add(a.OfferID)
			}
		}
	}
	for _, fg := range o.FulfillmentGroups {
		for _, a := range fg.Adjustments {
			add(a.OfferID)
		}
	}
	return out
}

// GetUniqueOffersFromOrder returns the offers adjusting o at any level.
// Offers that no longer exist are skipped.
func (s *Service) GetUniqueOffersFromOrder(ctx context.Context, o *order.Order) ([]*offer.Offer, error) {
	ids := uniqueOfferIDs(o)
	out := make([]*offer.Offer, 0, len(ids))
	for _, offerID := range ids {
		off, err := s.offers.GetByID(ctx, offerID)
		if err != nil {
			if apperror.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, off)
	}
	return out, nil
}

// GetOffersRetrievedFromCodes maps applied offer ids to the code that brought
// them into the order, including offers the extension attaches to a code.
func (s *Service) GetOffersRetrievedFromCodes(ctx context.Context, o *order.Order) (map[id.ID]*offer.OfferCode, error) {
	applied := make(map[id.ID]bool)
	for _, v := range uniqueOfferIDs(o) {
		applied[v] = true
	}

	out := make(map[id.ID]*offer.OfferCode)
	for _, code := range o.AddedOfferCodes {
		if applied[code.Offer.ID()] {
			out[code.Offer.ID()] = code
		}
		extra, err := s.extension.AddAdditionalOffersForCode(ctx, code)
		if err != nil {
			return nil, err
		}
		for _, off := range extra {
			out[off.ID] = code
		}
	}
	return out, nil
}

// RecordOfferUsage stores one usage row per offer applied to o.
func (s *Service) RecordOfferUsage(ctx context.Context, o *order.Order) error {
	if s.usageRecorder == nil {
		return nil
	}
	byCode, err := s.GetOffersRetrievedFromCodes(ctx, o)
	if err != nil {
		return err
	}
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, offerID := range uniqueOfferIDs(o) {
			var codeID *id.ID
			if code, ok := byCode[offerID]; ok {
				cid := code.ID
				codeID = &cid
			}
			if err := s.usageRecorder.RecordUsage(ctx, o, offerID, codeID); err != nil {
				return fmt.Errorf("record usage of offer %s: %w", offerID, err)
			}
		}
		return nil
	})
}

// DeleteOfferCode deletes code unless an order has already used it.
// Returns false when the code was kept.
func (s *Service) DeleteOfferCode(ctx context.Context, codeID id.ID) (bool, error) {
	deleted := false
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		used, err := s.codes.IsUsed(ctx, codeID)
		if err != nil {
			return err
		}
		if used {
			return nil
		}
		if err := s.codes.Delete(ctx, codeID); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if deleted {
		logger.Info(ctx, "offer code deleted", "code_id", codeID)
	}
	return deleted, nil
}
