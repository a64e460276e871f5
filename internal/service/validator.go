// Package service orchestrates jurisdiction and coupon validation: geocode
// the address, resolve its tax district, apply the matching rules and
// report the decision.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/agromin/jurisdiction-validator/internal/domain"
	"github.com/agromin/jurisdiction-validator/internal/observability"
)

const (
	endpointJurisdiction = "jurisdiction"
	endpointCoupon       = "coupon"
)

// DistrictIndex resolves points and reports how many districts it holds.
type DistrictIndex interface {
	domain.DistrictResolver
	Len() int
}

// CouponSource returns the current coupon dataset keyed by code.
type CouponSource interface {
	Get(ctx context.Context) map[string]domain.CouponRecord
}

// DecisionPublisher receives every decision. Publishing is best effort.
type DecisionPublisher interface {
	Publish(ctx context.Context, event domain.DecisionEvent) error
}

// Validator answers the two validation questions of the service.
type Validator struct {
	geocoder  domain.Geocoder
	districts DistrictIndex
	coupons   CouponSource
	publisher DecisionPublisher
	clock     clockwork.Clock
	location  *time.Location
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// Option customizes a Validator.
type Option func(*Validator)

// WithClock replaces the real clock, e.g. to pin "today" in tests.
func WithClock(c clockwork.Clock) Option {
	return func(v *Validator) { v.clock = c }
}

// WithLocation sets the timezone whose calendar date is "today".
func WithLocation(loc *time.Location) Option {
	return func(v *Validator) { v.location = loc }
}

// WithPublisher sends every decision to p.
func WithPublisher(p DecisionPublisher) Option {
	return func(v *Validator) { v.publisher = p }
}

// New creates a Validator.
func New(geocoder domain.Geocoder, districts DistrictIndex, coupons CouponSource, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Validator {
	v := &Validator{
		geocoder:  geocoder,
		districts: districts,
		coupons:   coupons,
		clock:     clockwork.NewRealClock(),
		location:  time.UTC,
		logger:    logger,
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// CheckReadiness fails until at least one tax district is loaded.
func (v *Validator) CheckReadiness(_ context.Context) error {
	if v.districts == nil || v.districts.Len() == 0 {
		return errors.New("no tax districts loaded")
	}
	return nil
}

// ValidateJurisdiction checks whether address lies in the claimed
// jurisdiction. A returned error means no decision could be made; its kind
// says why.
func (v *Validator) ValidateJurisdiction(ctx context.Context, address, claim string) (domain.JurisdictionDecision, error) {
	start := v.clock.Now()

	loc, err := domain.LocateAddress(ctx, address, v.geocoder, v.districts, v.logger)
	if err != nil {
		v.record(endpointJurisdiction, domain.StatusError, start)
		ev := domain.NewDecisionEvent(domain.DecisionJurisdiction, domain.StatusError, address, v.clock.Now())
		ev.Claimed = claim
		ev.Reason = err.Error()
		v.publish(ctx, ev)
		return domain.JurisdictionDecision{}, err
	}

	county := loc.District.County
	matched, label := domain.MatchJurisdiction(claim, loc.District.City, &county)

	decision := domain.JurisdictionDecision{
		Status:              domain.StatusDenied,
		ClaimedJurisdiction: claim,
		ActualJurisdiction:  label,
		MatchedAddress:      loc.Geocoding.MatchedAddress,
	}
	if matched {
		decision.Status = domain.StatusAccepted
	}

	v.logger.Info("jurisdiction validated",
		"status", decision.Status,
		"claimed", claim,
		"actual", label,
		"district", loc.District.JurisdictionName,
	)
	v.record(endpointJurisdiction, decision.Status, start)

	ev := domain.NewDecisionEvent(domain.DecisionJurisdiction, decision.Status, address, v.clock.Now())
	ev.Claimed = claim
	ev.ActualJurisdiction = label
	ev.MatchedAddress = decision.MatchedAddress
	v.publish(ctx, ev)

	return decision, nil
}

// ValidateCoupon decides whether code may be used at address today. The
// decision is always complete, including for failures: rule violations are
// "denied" and lookup failures are "error", each with a reason. The error,
// when non-nil, is the cause behind a non-accepted decision.
func (v *Validator) ValidateCoupon(ctx context.Context, address, code string) (domain.CouponDecision, error) {
	start := v.clock.Now()
	code = domain.NormalizeCouponCode(code)
	decision := domain.CouponDecision{Coupon: code}

	finish := func(err error) (domain.CouponDecision, error) {
		v.record(endpointCoupon, decision.Status, start)
		ev := domain.NewDecisionEvent(domain.DecisionCoupon, decision.Status, address, v.clock.Now())
		ev.Coupon = code
		ev.Claimed = decision.Jurisdiction
		ev.ActualJurisdiction = decision.ActualJurisdiction
		ev.MatchedAddress = decision.MatchedAddress
		ev.Reason = decision.Reason
		v.publish(ctx, ev)
		return decision, err
	}

	today := domain.Today(v.clock, v.location)
	rec, err := domain.CheckCoupon(v.coupons.Get(ctx), code, today)
	decision.Jurisdiction = rec.Jurisdiction
	if err != nil {
		decision.Status, decision.Reason = statusFor(err), err.Error()
		v.logger.Info("coupon rejected", "coupon", code, "reason", decision.Reason)
		return finish(err)
	}

	loc, err := domain.LocateAddress(ctx, address, v.geocoder, v.districts, v.logger)
	if err != nil {
		decision.Status, decision.Reason = statusFor(err), err.Error()
		return finish(err)
	}

	county := loc.District.County
	matched, label := domain.MatchJurisdiction(rec.Jurisdiction, loc.District.City, &county)
	decision.ActualJurisdiction = label
	decision.MatchedAddress = loc.Geocoding.MatchedAddress

	if !matched {
		decision.Status = domain.StatusDenied
		decision.Reason = fmt.Sprintf("Address is not within %s (found %s)", rec.Jurisdiction, label)
		v.logger.Info("coupon outside jurisdiction", "coupon", code, "required", rec.Jurisdiction, "actual", label)
		return finish(domain.Denied(decision.Reason))
	}

	decision.Status = domain.StatusAccepted
	decision.Reason = "Valid"
	v.logger.Info("coupon accepted", "coupon", code, "jurisdiction", label)
	return finish(nil)
}

// statusFor maps an error kind to the decision status reported for it.
func statusFor(err error) string {
	if domain.KindOf(err) == domain.KindDenied {
		return domain.StatusDenied
	}
	return domain.StatusError
}

func (v *Validator) record(endpoint, status string, start time.Time) {
	v.metrics.ValidationRequests.WithLabelValues(endpoint, status).Inc()
	v.metrics.ValidationDuration.WithLabelValues(endpoint).Observe(v.clock.Since(start).Seconds())
}

func (v *Validator) publish(ctx context.Context, ev domain.DecisionEvent) {
	if v.publisher == nil {
		return
	}
	if err := v.publisher.Publish(ctx, ev); err != nil {
		v.logger.Warn("decision event not published", "id", ev.ID, "error", err)
	}
}
