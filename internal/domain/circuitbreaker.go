package domain

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BreakerState is one of the four circuit-breaker states.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
	BreakerDisabled BreakerState = "disabled"
)

// TriggerCause identifies which condition check fired.
type TriggerCause string

const (
	CauseVolatility TriggerCause = "extreme_volatility"
	CauseFlood      TriggerCause = "liquidation_flood"
	CauseGasSpike   TriggerCause = "gas_price_spike"
	CauseMultiple   TriggerCause = "multiple_conditions"
)

const baselineGasPriceWei = 20_000_000_000 // 20 gwei

// MarketDataPoint is one entry in the circuit breaker's sliding-window ring.
// Invariant: Succeeded implies Attempted.
type MarketDataPoint struct {
	Timestamp   time.Time
	Price       *float64
	Attempted   bool
	Succeeded   bool
	GasPriceWei *float64
}

// BreakerAlert is published on every state transition.
type BreakerAlert struct {
	ID          string // opaque unique id, assigned by publish
	Timestamp   time.Time
	Cause       TriggerCause
	NewState    BreakerState
	Message     string
}

// BreakerStats accumulates lifetime counters.
type BreakerStats struct {
	TotalActivations       uint64
	TotalLiquidationsBlocked uint64
	VolatilityTriggers     uint64
	FloodTriggers          uint64
	GasSpikeTriggers       uint64
	LastActivationReason   string
}

// BreakerThresholds is the configuration the breaker evaluates against.
type BreakerThresholds struct {
	MaxVolatilityPercent    float64
	MaxLiquidationsPerMin   uint64
	MaxGasMultiplier        uint64
	MonitoringWindow        time.Duration
	CooldownPeriod          time.Duration
	HalfOpenProbeInterval   time.Duration // default 30s
}

// CurrentConditions is a point-in-time snapshot of the window's statistics.
type CurrentConditions struct {
	VolatilityPercent      *float64
	AttemptsPerMinute      uint64
	SucceededPerMinute     uint64
	GasMultiplier          *uint64
	DataPointsCount        int
}

// StatusReport is produced on demand and periodically (§6 Status output).
type StatusReport struct {
	State                   BreakerState
	Stats                   BreakerStats
	TimeSinceActivation     *time.Duration
	Thresholds              BreakerThresholds
	CurrentConditions       CurrentConditions
	TrackedAssets           []string // asset symbols currently configured, set by the caller; empty if unknown
}

// CircuitBreaker is the market-condition state machine guarding the
// priority-channel consumer. Clock is injectable so tests never need real
// wall-clock sleeps of tens of seconds.
type CircuitBreaker struct {
	mu sync.RWMutex

	state      BreakerState
	thresholds BreakerThresholds
	data       []MarketDataPoint
	stats      BreakerStats

	lastActivation      *time.Time
	lastHalfOpenProbe    *time.Time

	clock func() time.Time

	alerts chan BreakerAlert
}

// NewCircuitBreaker constructs a breaker; enabled=false starts it Disabled.
func NewCircuitBreaker(thresholds BreakerThresholds, enabled bool) *CircuitBreaker {
	if thresholds.HalfOpenProbeInterval <= 0 {
		thresholds.HalfOpenProbeInterval = 30 * time.Second
	}
	initial := BreakerClosed
	if !enabled {
		initial = BreakerDisabled
	}
	return &CircuitBreaker{
		state:      initial,
		thresholds: thresholds,
		clock:      time.Now,
		alerts:     make(chan BreakerAlert, 64),
	}
}

// SetClock overrides the time source; used by tests to simulate cooldowns
// without sleeping.
func (cb *CircuitBreaker) SetClock(clock func() time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.clock = clock
}

// Alerts returns the channel state transitions are published on. The core
// never blocks on delivery: RecordLiquidationAttempt/RecordPriceUpdate send
// non-blockingly and drop the alert if the buffer is full.
func (cb *CircuitBreaker) Alerts() <-chan BreakerAlert {
	return cb.alerts
}

// State returns the current breaker state, advancing the Open→HalfOpen
// transition first if the cooldown has elapsed.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	cb.maybeTransitionToHalfOpen()
	s := cb.state
	cb.mu.Unlock()
	return s
}

// maybeTransitionToHalfOpen must be called with cb.mu held.
func (cb *CircuitBreaker) maybeTransitionToHalfOpen() {
	if cb.state != BreakerOpen || cb.lastActivation == nil {
		return
	}
	if cb.clock().Sub(*cb.lastActivation) < cb.thresholds.CooldownPeriod {
		return
	}
	cb.state = BreakerHalfOpen
	cb.publish(BreakerAlert{
		Timestamp: cb.clock(),
		NewState:  BreakerHalfOpen,
		Message:   "circuit breaker half-open: testing market conditions",
	})
}

// IsLiquidationAllowed reports whether a liquidation may proceed right now.
// Half-Open allows only rate-limited probes (§4.E Probe policy).
func (cb *CircuitBreaker) IsLiquidationAllowed() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeTransitionToHalfOpen()
	switch cb.state {
	case BreakerClosed:
		return true
	case BreakerHalfOpen:
		return cb.probeAllowedLocked()
	default:
		return false
	}
}

func (cb *CircuitBreaker) probeAllowedLocked() bool {
	if cb.lastHalfOpenProbe == nil {
		return true
	}
	return cb.clock().Sub(*cb.lastHalfOpenProbe) >= cb.thresholds.HalfOpenProbeInterval
}

// RecordTestLiquidation marks that a Half-Open probe succeeded. The
// priority-channel consumer calls this only when the probe succeeded and the
// snapshot it captured before the attempt was Half-Open (§9 TOCTOU note).
func (cb *CircuitBreaker) RecordTestLiquidation() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := cb.clock()
	cb.lastHalfOpenProbe = &now
}

// RecordBlockedLiquidation increments the blocked-attempt counter when the
// breaker disallowed an attempt before it was made.
func (cb *CircuitBreaker) RecordBlockedLiquidation() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.stats.TotalLiquidationsBlocked++
}

// RecordLiquidationAttempt is the sole entry point for liquidation outcomes:
// attempted=true always, succeeded mirrors the caller's outcome. This is one
// of exactly two recorder APIs; no conflated variant exists in this package.
func (cb *CircuitBreaker) RecordLiquidationAttempt(succeeded bool, gasPriceWei *float64) {
	point := MarketDataPoint{
		Attempted:   true,
		Succeeded:   succeeded,
		GasPriceWei: gasPriceWei,
	}
	cb.insertAndCheck(point)
}

// RecordPriceUpdate is the sole entry point for price/gas observations that
// carry no liquidation outcome: attempted=false, succeeded=false always.
func (cb *CircuitBreaker) RecordPriceUpdate(price *float64, gasPriceWei *float64) {
	point := MarketDataPoint{
		Attempted:   false,
		Succeeded:   false,
		Price:       price,
		GasPriceWei: gasPriceWei,
	}
	cb.insertAndCheck(point)
}

func (cb *CircuitBreaker) insertAndCheck(point MarketDataPoint) {
	cb.mu.Lock()
	if cb.state == BreakerDisabled {
		cb.mu.Unlock()
		return
	}
	point.Timestamp = cb.clock()
	cb.data = append(cb.data, point)
	cb.pruneLocked()

	cb.maybeTransitionToHalfOpen()
	if cb.state == BreakerOpen {
		cb.mu.Unlock()
		return
	}

	causes := cb.checkConditionsLocked()
	currentState := cb.state

	if len(causes) > 0 {
		if currentState != BreakerOpen {
			cb.activateLocked(causes)
		}
	} else if currentState == BreakerHalfOpen {
		cb.closeLocked()
	}
	cb.mu.Unlock()
}

// pruneLocked drops data points older than the monitoring window. Must be
// called with cb.mu held.
func (cb *CircuitBreaker) pruneLocked() {
	cutoff := cb.clock().Add(-cb.thresholds.MonitoringWindow)
	i := 0
	for i < len(cb.data) && cb.data[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		cb.data = cb.data[i:]
	}
}

// checkConditionsLocked runs the three trigger checks against the current
// window. Must be called with cb.mu held.
func (cb *CircuitBreaker) checkConditionsLocked() []TriggerCause {
	var causes []TriggerCause

	if v := cb.volatilityLocked(); v != nil && *v > cb.thresholds.MaxVolatilityPercent {
		causes = append(causes, CauseVolatility)
	}

	perMinute := cb.attemptsPerMinuteLocked()
	if perMinute > cb.thresholds.MaxLiquidationsPerMin {
		causes = append(causes, CauseFlood)
	}

	if g := cb.gasMultiplierLocked(); g != nil && *g > cb.thresholds.MaxGasMultiplier {
		causes = append(causes, CauseGasSpike)
	}

	return causes
}

// volatilityLocked computes max |p - p0| / p0 * 100 over all observed prices
// in the window, using the oldest observed price as baseline p0.
func (cb *CircuitBreaker) volatilityLocked() *float64 {
	var prices []float64
	for _, p := range cb.data {
		if p.Price != nil {
			prices = append(prices, *p.Price)
		}
	}
	if len(prices) < 2 {
		return nil
	}
	baseline := prices[0]
	const epsilon = 1e-10
	if math.Abs(baseline) < epsilon {
		return nil
	}
	max := 0.0
	for _, price := range prices[1:] {
		v := math.Abs((price-baseline)/baseline) * 100.0
		if v > max {
			max = v
		}
	}
	return &max
}

// attemptsPerMinuteLocked scales the count of attempted data points (not
// just succeeded ones) to a per-minute rate, rounded to the nearest integer.
func (cb *CircuitBreaker) attemptsPerMinuteLocked() uint64 {
	var count uint64
	for _, p := range cb.data {
		if p.Attempted {
			count++
		}
	}
	return scalePerMinute(count, cb.thresholds.MonitoringWindow)
}

func (cb *CircuitBreaker) succeededPerMinuteLocked() uint64 {
	var count uint64
	for _, p := range cb.data {
		if p.Succeeded {
			count++
		}
	}
	return scalePerMinute(count, cb.thresholds.MonitoringWindow)
}

func scalePerMinute(count uint64, window time.Duration) uint64 {
	windowSecs := window.Seconds()
	if windowSecs <= 0 {
		return 0
	}
	return uint64(math.Round(float64(count) * 60.0 / windowSecs))
}

// gasMultiplierLocked returns the most recently observed gas price divided by
// the 20 gwei baseline, floored at 1.
func (cb *CircuitBreaker) gasMultiplierLocked() *uint64 {
	for i := len(cb.data) - 1; i >= 0; i-- {
		if cb.data[i].GasPriceWei != nil {
			mult := uint64(*cb.data[i].GasPriceWei / baselineGasPriceWei)
			if mult < 1 {
				mult = 1
			}
			return &mult
		}
	}
	return nil
}

// activateLocked transitions Closed/HalfOpen -> Open. Must be called with
// cb.mu held.
func (cb *CircuitBreaker) activateLocked(causes []TriggerCause) {
	now := cb.clock()
	cb.state = BreakerOpen
	cb.lastActivation = &now
	cb.stats.TotalActivations++

	cause := causes[0]
	if len(causes) > 1 {
		cause = CauseMultiple
	}
	for _, c := range causes {
		switch c {
		case CauseVolatility:
			cb.stats.VolatilityTriggers++
		case CauseFlood:
			cb.stats.FloodTriggers++
		case CauseGasSpike:
			cb.stats.GasSpikeTriggers++
		}
	}
	cb.stats.LastActivationReason = string(cause)

	cb.publish(BreakerAlert{
		Timestamp: now,
		Cause:     cause,
		NewState:  BreakerOpen,
		Message:   "circuit breaker activated: " + string(cause),
	})
}

// closeLocked transitions HalfOpen -> Closed. Must be called with cb.mu held.
func (cb *CircuitBreaker) closeLocked() {
	cb.state = BreakerClosed
	cb.publish(BreakerAlert{
		Timestamp: cb.clock(),
		NewState:  BreakerClosed,
		Message:   "circuit breaker closed: normal operations resumed",
	})
}

// publish sends an alert without blocking the caller. Must be called with
// cb.mu held (alerts channel is buffered so this never suspends in practice).
func (cb *CircuitBreaker) publish(alert BreakerAlert) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	select {
	case cb.alerts <- alert:
	default:
	}
}

// Disable is the operator override: Any -> Disabled.
func (cb *CircuitBreaker) Disable() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = BreakerDisabled
	cb.publish(BreakerAlert{Timestamp: cb.clock(), NewState: BreakerDisabled, Message: "circuit breaker manually disabled"})
}

// Enable is the operator override: Disabled -> Closed.
func (cb *CircuitBreaker) Enable() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = BreakerClosed
	cb.publish(BreakerAlert{Timestamp: cb.clock(), NewState: BreakerClosed, Message: "circuit breaker manually enabled"})
}

// Stats returns a copy of the lifetime counters.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.stats
}

// HealthScore is an advisory score in [0, 100], a convex combination of the
// three normalized trigger ratios with an extra penalty while not-Closed.
func (cb *CircuitBreaker) HealthScore() uint8 {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	score := 100.0

	if v := cb.volatilityLocked(); v != nil && cb.thresholds.MaxVolatilityPercent > 0 {
		penalty := (*v / cb.thresholds.MaxVolatilityPercent) * 30.0
		score -= math.Min(penalty, 30)
	}

	if cb.thresholds.MaxLiquidationsPerMin > 0 {
		ratio := float64(cb.attemptsPerMinuteLocked()) / float64(cb.thresholds.MaxLiquidationsPerMin)
		score -= math.Min(ratio*30.0, 30)
	}

	if g := cb.gasMultiplierLocked(); g != nil && cb.thresholds.MaxGasMultiplier > 0 {
		ratio := float64(*g) / float64(cb.thresholds.MaxGasMultiplier)
		score -= math.Min(ratio*20.0, 20)
	}

	if score < 0 {
		score = 0
	}

	switch cb.state {
	case BreakerOpen:
		score -= 20
	case BreakerHalfOpen:
		score -= 10
	case BreakerDisabled:
		return 0
	}
	if score < 0 {
		score = 0
	}
	return uint8(score)
}

// StatusReport builds the on-demand/periodic report described in §6.
func (cb *CircuitBreaker) StatusReport() StatusReport {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var sinceActivation *time.Duration
	if cb.lastActivation != nil {
		d := cb.clock().Sub(*cb.lastActivation)
		sinceActivation = &d
	}

	return StatusReport{
		State:               cb.state,
		Stats:               cb.stats,
		TimeSinceActivation: sinceActivation,
		Thresholds:          cb.thresholds,
		CurrentConditions: CurrentConditions{
			VolatilityPercent:  cb.volatilityLocked(),
			AttemptsPerMinute:  cb.attemptsPerMinuteLocked(),
			SucceededPerMinute: cb.succeededPerMinuteLocked(),
			GasMultiplier:      cb.gasMultiplierLocked(),
			DataPointsCount:    len(cb.data),
		},
	}
}
