// README: Assignment coordinator: one worker per request runs the
// query → rank → lease → offer → resolve cycle, retrying with expansion
// until matched, exhausted, or cancelled.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dispatch/internal/archive"
	"dispatch/internal/config"
	"dispatch/internal/geo"
	"dispatch/internal/logx"
	"dispatch/internal/metrics"
	"dispatch/internal/modules/agent"
	"dispatch/internal/modules/rank"
	"dispatch/internal/modules/spatial"
	"dispatch/internal/notify"
	"dispatch/internal/types"
)

// SpatialQuerier is the slice of the spatial index the coordinator needs.
type SpatialQuerier interface {
	QueryRadius(origin types.Point, radiusM float64) []spatial.Neighbor
}

// CandidateRanker orders offerable candidates; see rank.Ranker.
type CandidateRanker interface {
	Rank(ctx context.Context, origin types.Point, cands []rank.Candidate, p config.DispatchParams) []rank.Ranked
}

// sweepGrace is how far past a round deadline the supervisory sweep waits
// before force-finishing a round whose own timer died with its worker.
const sweepGrace = 2 * time.Second

type CoordinatorDeps struct {
	Store    *Store
	Index    SpatialQuerier
	Registry *agent.Registry
	Ranker   CandidateRanker
	Notifier notify.Notifier
	Archive  archive.Store
	Params   *ParamStore
	Metrics  *metrics.Metrics
	Log      logx.Logger
}

type Coordinator struct {
	store    *Store
	index    SpatialQuerier
	registry *agent.Registry
	ranker   CandidateRanker
	notifier notify.Notifier
	archive  archive.Store
	params   *ParamStore
	metrics  *metrics.Metrics
	log      logx.Logger
	now      func() time.Time

	inflight sync.Map // types.ID -> *liveRequest
}

func NewCoordinator(d CoordinatorDeps) *Coordinator {
	if d.Archive == nil {
		d.Archive = archive.NopStore{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Nop()
	}
	if d.Log == nil {
		d.Log = logx.Nop()
	}
	return &Coordinator{
		store:    d.Store,
		index:    d.Index,
		registry: d.Registry,
		ranker:   d.Ranker,
		notifier: d.Notifier,
		archive:  d.Archive,
		params:   d.Params,
		metrics:  d.Metrics,
		log:      d.Log,
		now:      time.Now,
	}
}

// WithClock overrides the coordinator clock. Tests only.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// decision is one agent's answer to an offer, queued for serialized
// processing by the request's worker.
type decision struct {
	agentID types.ID
	accept  bool
}

// liveRequest is the in-flight bookkeeping of one dispatch worker. offers
// holds the current round only; decisions is consumed by a single goroutine,
// which is what serializes acceptance and guarantees a single winner.
type liveRequest struct {
	id        types.ID
	decisions chan decision
	wake      chan struct{}

	mu            sync.Mutex
	offers        map[types.ID]*Offer
	reserve       []rank.Ranked
	cancelled     bool
	roundDeadline time.Time
}

func (lr *liveRequest) isCancelled() bool {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.cancelled
}

func (lr *liveRequest) nudge() {
	select {
	case lr.wake <- struct{}{}:
	default:
	}
}

// Submit registers a new request in the searching state and returns it.
func (c *Coordinator) Submit(origin types.Point, class string) (Request, error) {
	if !geo.ValidPoint(origin) {
		return Request{}, ErrBadRequest
	}
	req := Request{
		ID:        types.ID(uuid.NewString()),
		Origin:    origin,
		Class:     class,
		CreatedAt: c.now(),
		Status:    StatusSearching,
	}
	if err := c.store.Create(&req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Get returns the current view of a request.
func (c *Coordinator) Get(id types.ID) (Request, error) {
	return c.store.Get(id)
}

// Dispatch drives one request to a terminal outcome. It blocks for the whole
// search (callers run it on its own goroutine, one worker per request) and
// returns the match, ErrNoSupply after the round budget, or ErrCancelled.
func (c *Coordinator) Dispatch(ctx context.Context, reqID types.ID) (*MatchResult, error) {
	req, err := c.store.Get(reqID)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusSearching {
		return nil, ErrInvalidState
	}

	lr := &liveRequest{
		id:        reqID,
		decisions: make(chan decision, 64),
		wake:      make(chan struct{}, 1),
	}
	if _, loaded := c.inflight.LoadOrStore(reqID, lr); loaded {
		return nil, ErrConflict
	}
	defer c.inflight.Delete(reqID)

	start := c.now()
	round := FirstRound(c.params.Load())

	for {
		if lr.isCancelled() {
			return nil, c.finalizeCancelled(ctx, reqID, round.Round, start)
		}
		// Re-read parameters each round so admin tuning applies to retries.
		p := c.params.Load()

		result, outcome := c.runRound(ctx, &req, lr, round, p, start)
		switch outcome {
		case roundMatched:
			return result, nil
		case roundCancelled:
			return nil, c.finalizeCancelled(ctx, reqID, round.Round, start)
		case roundAborted:
			c.releaseRound(ctx, lr, notify.WithdrawCancelled)
			return nil, ctx.Err()
		case roundFailed:
			next, ok := NextRound(round, p)
			if !ok {
				return nil, c.finalizeExhausted(ctx, reqID, round.Round, start)
			}
			c.log.Info("round failed, expanding search",
				logx.String("request_id", string(reqID)),
				logx.Int("next_round", next.Round),
				logx.Float64("next_radius_m", next.RadiusM))
			round = next
			c.store.SetRounds(reqID, round.Round)
		}
	}
}

type roundOutcome int

const (
	roundMatched roundOutcome = iota
	roundFailed
	roundCancelled
	roundAborted
)

func (c *Coordinator) runRound(ctx context.Context, req *Request, lr *liveRequest, round RoundState, p config.DispatchParams, start time.Time) (*MatchResult, roundOutcome) {
	candidates := c.collectCandidates(req, round)
	if len(candidates) == 0 {
		// NoCandidate: recovered locally by expansion.
		return nil, roundFailed
	}

	// The round's relaxed floor overrides the configured one for ranking.
	pEff := p
	pEff.QualityFloor = round.QualityFloor
	ranked := c.ranker.Rank(ctx, req.Origin, candidates, pEff)

	acquired := c.acquireOffers(lr, req.ID, ranked, p)
	if len(acquired) == 0 {
		return nil, roundFailed
	}

	if _, err := c.store.UpdateStatus(req.ID, StatusOffering); err != nil {
		// Lost a race with cancellation.
		c.releaseRound(ctx, lr, notify.WithdrawCancelled)
		return nil, roundCancelled
	}
	c.recordEvent(ctx, req.ID, StatusSearching, StatusOffering, nil)

	c.pushOffers(ctx, req, lr, acquired)

	result, outcome := c.awaitRound(ctx, req, lr, p, round, start)
	if outcome == roundFailed {
		// Back to searching for the next expansion round.
		if _, err := c.store.UpdateStatus(req.ID, StatusSearching); err == nil {
			c.recordEvent(ctx, req.ID, StatusOffering, StatusSearching, nil)
		}
	}
	return result, outcome
}

// collectCandidates intersects the spatial neighbourhood with the registry's
// offerability filters, preserving distance order.
func (c *Coordinator) collectCandidates(req *Request, round RoundState) []rank.Candidate {
	neighbors := c.index.QueryRadius(req.Origin, round.RadiusM)
	if len(neighbors) == 0 {
		return nil
	}
	ids := make([]types.ID, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ID
	}
	offerable := c.registry.Candidates(ids, req.Class, round.QualityFloor)
	byID := make(map[types.ID]agent.Agent, len(offerable))
	for _, a := range offerable {
		byID[a.ID] = a
	}

	out := make([]rank.Candidate, 0, len(offerable))
	for _, n := range neighbors {
		if a, ok := byID[n.ID]; ok {
			out = append(out, rank.Candidate{Agent: a, DistanceM: n.DistanceM})
		}
	}
	return out
}

// acquireOffers walks the ranking and claims leases until top-K offers are
// held. A lease conflict skips to the next candidate without blocking; the
// remainder of the ranking is kept as the round's reserve for the optional
// same-round backfill of declines.
func (c *Coordinator) acquireOffers(lr *liveRequest, reqID types.ID, ranked []rank.Ranked, p config.DispatchParams) []*Offer {
	now := c.now()
	expiresAt := now.Add(p.OfferTimeout)

	var acquired []*Offer
	offers := make(map[types.ID]*Offer, p.TopK)
	i := 0
	for ; i < len(ranked) && len(acquired) < p.TopK; i++ {
		aid := ranked[i].Agent.ID
		if err := c.registry.TryAcquire(aid, reqID, expiresAt); err != nil {
			if err == agent.ErrLeaseHeld {
				c.metrics.LeaseConflictsTotal.Inc()
			}
			continue
		}
		off := &Offer{
			ID:        types.ID(uuid.NewString()),
			RequestID: reqID,
			AgentID:   aid,
			IssuedAt:  now,
			ExpiresAt: expiresAt,
			Outcome:   OutcomePending,
		}
		offers[aid] = off
		acquired = append(acquired, off)
	}

	lr.mu.Lock()
	lr.offers = offers
	lr.reserve = ranked[i:]
	lr.roundDeadline = expiresAt
	lr.mu.Unlock()
	return acquired
}

// pushOffers fans the round's offers out in parallel. Delivery failures are
// logged and left to expire; they must not fail the round. An offer a
// concurrent cancel already withdrew is skipped, so an agent never sees an
// offer after its withdrawal.
func (c *Coordinator) pushOffers(ctx context.Context, req *Request, lr *liveRequest, offers []*Offer) {
	g, gctx := errgroup.WithContext(ctx)
	for _, off := range offers {
		off := off
		g.Go(func() error {
			lr.mu.Lock()
			pending := off.Outcome == OutcomePending
			lr.mu.Unlock()
			if !pending {
				return nil
			}
			ev := notify.OfferEvent{
				RequestID: off.RequestID,
				AgentID:   off.AgentID,
				Origin:    req.Origin,
				Class:     req.Class,
				ExpiresAt: off.ExpiresAt,
			}
			if err := c.notifier.Offer(gctx, ev); err != nil {
				c.log.Warn("offer delivery failed",
					logx.String("request_id", string(off.RequestID)),
					logx.String("agent_id", string(off.AgentID)),
					logx.Err(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// awaitRound consumes decisions until a winner emerges, everyone declines,
// or the acceptance window closes. Being the sole consumer of lr.decisions
// is what makes "first acceptance observed wins" well defined.
func (c *Coordinator) awaitRound(ctx context.Context, req *Request, lr *liveRequest, p config.DispatchParams, round RoundState, start time.Time) (*MatchResult, roundOutcome) {
	timer := time.NewTimer(p.OfferTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, roundAborted

		case <-lr.wake:
			if lr.isCancelled() {
				return nil, roundCancelled
			}
			// Sweep nudge: the deadline passed without the timer firing.
			lr.mu.Lock()
			expired := !lr.roundDeadline.IsZero() && c.now().After(lr.roundDeadline)
			lr.mu.Unlock()
			if expired {
				c.expireRound(ctx, lr)
				return nil, roundFailed
			}

		case <-timer.C:
			c.expireRound(ctx, lr)
			c.metrics.OfferTimeoutsTotal.Inc()
			return nil, roundFailed

		case d := <-lr.decisions:
			if result, outcome, done := c.applyDecision(ctx, req, lr, p, round, start, d); done {
				return result, outcome
			}
		}
	}
}

// applyDecision folds one agent decision into the round. done is false while
// the round should keep waiting.
func (c *Coordinator) applyDecision(ctx context.Context, req *Request, lr *liveRequest, p config.DispatchParams, round RoundState, start time.Time, d decision) (*MatchResult, roundOutcome, bool) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	off := lr.offers[d.agentID]
	if off == nil || off.Outcome != OutcomePending {
		return nil, 0, false
	}

	if d.accept {
		if c.now().After(off.ExpiresAt) {
			// Stale acceptance: the window closed before it arrived.
			off.Outcome = OutcomeExpired
			_ = c.registry.Release(off.AgentID, req.ID)
		} else if err := c.store.SetMatched(req.ID, off.AgentID, c.now(), round.Round); err != nil {
			// A concurrent cancel won the transition race.
			off.Outcome = OutcomeWithdrawn
			_ = c.registry.Release(off.AgentID, req.ID)
			return nil, roundCancelled, true
		} else {
			off.Outcome = OutcomeAccepted
			return c.finalizeMatchLocked(ctx, req, lr, off, round, start), roundMatched, true
		}
	} else {
		off.Outcome = OutcomeDeclined
		_ = c.registry.Release(off.AgentID, req.ID)
		if p.RetryDeclinedSameRound {
			c.backfillLocked(ctx, req, lr, p)
		}
	}

	if c.pendingLocked(lr) == 0 {
		// Everyone answered no; end the round early.
		return nil, roundFailed, true
	}
	return nil, 0, false
}

// finalizeMatchLocked completes a win: assign the agent, withdraw the losing
// offers so their agents free up immediately, archive, and meter.
func (c *Coordinator) finalizeMatchLocked(ctx context.Context, req *Request, lr *liveRequest, winner *Offer, round RoundState, start time.Time) *MatchResult {
	matchedAt := c.now()
	_ = c.registry.Assign(winner.AgentID, req.ID)

	bg := context.WithoutCancel(ctx)
	for _, off := range lr.offers {
		if off.Outcome != OutcomePending {
			continue
		}
		off.Outcome = OutcomeWithdrawn
		_ = c.registry.Release(off.AgentID, req.ID)
		if err := c.notifier.Withdraw(bg, notify.WithdrawEvent{
			RequestID: req.ID,
			AgentID:   off.AgentID,
			Reason:    notify.WithdrawMatched,
		}); err != nil {
			c.log.Warn("withdraw delivery failed", logx.String("agent_id", string(off.AgentID)), logx.Err(err))
		}
	}

	latency := matchedAt.Sub(start)
	c.recordEvent(bg, req.ID, StatusOffering, StatusMatched, &winner.AgentID)
	agentID := winner.AgentID
	if err := c.archive.SaveOutcome(bg, archive.Outcome{
		RequestID:  req.ID,
		AgentID:    &agentID,
		Status:     string(StatusMatched),
		Rounds:     round.Round,
		CreatedAt:  req.CreatedAt,
		ResolvedAt: matchedAt,
		LatencyMs:  latency.Milliseconds(),
	}); err != nil {
		c.log.Error("archive outcome failed", logx.String("request_id", string(req.ID)), logx.Err(err))
	}

	c.metrics.MatchesTotal.Inc()
	c.metrics.MatchLatency.Observe(latency.Seconds())
	c.metrics.RoundsPerOutcome.Observe(float64(round.Round))
	c.log.Info("request matched",
		logx.String("request_id", string(req.ID)),
		logx.String("agent_id", string(winner.AgentID)),
		logx.Int("rounds", round.Round),
		logx.Duration("latency", latency))

	return &MatchResult{
		RequestID: req.ID,
		AgentID:   winner.AgentID,
		MatchedAt: matchedAt,
		LatencyMs: latency.Milliseconds(),
		Rounds:    round.Round,
	}
}

// backfillLocked extends the round to the next untried candidate after a
// decline, when the same-round retry knob is on.
func (c *Coordinator) backfillLocked(ctx context.Context, req *Request, lr *liveRequest, p config.DispatchParams) {
	for len(lr.reserve) > 0 {
		next := lr.reserve[0]
		lr.reserve = lr.reserve[1:]
		aid := next.Agent.ID
		if _, seen := lr.offers[aid]; seen {
			continue
		}
		expiresAt := lr.roundDeadline
		if err := c.registry.TryAcquire(aid, req.ID, expiresAt); err != nil {
			if err == agent.ErrLeaseHeld {
				c.metrics.LeaseConflictsTotal.Inc()
			}
			continue
		}
		off := &Offer{
			ID:        types.ID(uuid.NewString()),
			RequestID: req.ID,
			AgentID:   aid,
			IssuedAt:  c.now(),
			ExpiresAt: expiresAt,
			Outcome:   OutcomePending,
		}
		lr.offers[aid] = off
		go c.pushOffers(ctx, req, lr, []*Offer{off})
		return
	}
}

func (c *Coordinator) pendingLocked(lr *liveRequest) int {
	n := 0
	for _, off := range lr.offers {
		if off.Outcome == OutcomePending {
			n++
		}
	}
	return n
}

// expireRound finalizes every still-pending offer of a timed-out round.
func (c *Coordinator) expireRound(ctx context.Context, lr *liveRequest) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	bg := context.WithoutCancel(ctx)
	for _, off := range lr.offers {
		if off.Outcome != OutcomePending {
			continue
		}
		off.Outcome = OutcomeExpired
		_ = c.registry.Release(off.AgentID, lr.id)
		_ = c.notifier.Withdraw(bg, notify.WithdrawEvent{
			RequestID: lr.id,
			AgentID:   off.AgentID,
			Reason:    notify.WithdrawExpired,
		})
	}
	lr.roundDeadline = time.Time{}
}

// releaseRound withdraws everything pending with the given reason.
func (c *Coordinator) releaseRound(ctx context.Context, lr *liveRequest, reason notify.WithdrawReason) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	c.releaseOffersLocked(context.WithoutCancel(ctx), lr, reason)
}

func (c *Coordinator) releaseOffersLocked(ctx context.Context, lr *liveRequest, reason notify.WithdrawReason) {
	for _, off := range lr.offers {
		if off.Outcome != OutcomePending {
			continue
		}
		off.Outcome = OutcomeWithdrawn
		_ = c.registry.Release(off.AgentID, lr.id)
		_ = c.notifier.Withdraw(ctx, notify.WithdrawEvent{
			RequestID: lr.id,
			AgentID:   off.AgentID,
			Reason:    reason,
		})
	}
}

// Resolve feeds an agent's accept/decline back into the owning worker. The
// decision is validated against the current round's pending offers and then
// queued; ordering on the queue is the arrival order that breaks ties.
func (c *Coordinator) Resolve(requestID, agentID types.ID, accept bool) error {
	v, ok := c.inflight.Load(requestID)
	if !ok {
		if _, err := c.store.Get(requestID); err != nil {
			return ErrNotFound
		}
		return ErrStaleDecision
	}
	lr := v.(*liveRequest)

	lr.mu.Lock()
	off := lr.offers[agentID]
	valid := off != nil && off.Outcome == OutcomePending
	lr.mu.Unlock()
	if !valid {
		return ErrStaleDecision
	}

	select {
	case lr.decisions <- decision{agentID: agentID, accept: accept}:
		return nil
	default:
		return ErrStaleDecision
	}
}

// Cancel aborts a request. Idempotent at every stage: cancelling an already
// cancelled (or otherwise terminal) request is a no-op. Before a match it
// releases all held leases synchronously and withdraws the outstanding
// offers; after a match the signal is recorded and handed to the trip
// lifecycle collaborator.
func (c *Coordinator) Cancel(ctx context.Context, requestID types.ID) error {
	if v, ok := c.inflight.Load(requestID); ok {
		lr := v.(*liveRequest)
		lr.mu.Lock()
		if lr.cancelled {
			lr.mu.Unlock()
			return nil
		}
		if req, err := c.store.Get(requestID); err == nil && req.Status == StatusMatched {
			lr.mu.Unlock()
			return c.cancelAfterMatch(ctx, req)
		}
		lr.cancelled = true
		c.releaseOffersLocked(context.WithoutCancel(ctx), lr, notify.WithdrawCancelled)
		lr.mu.Unlock()
		lr.nudge()
		return nil
	}

	req, err := c.store.Get(requestID)
	if err != nil {
		return err
	}
	switch req.Status {
	case StatusCancelled, StatusExhausted:
		return nil
	case StatusMatched:
		return c.cancelAfterMatch(ctx, req)
	default:
		// Created but no worker attached yet.
		if _, err := c.store.UpdateStatus(requestID, StatusCancelled); err != nil {
			return nil
		}
		c.finishCancelled(ctx, requestID, req.Rounds, req.CreatedAt)
		return nil
	}
}

func (c *Coordinator) cancelAfterMatch(ctx context.Context, req Request) error {
	bg := context.WithoutCancel(ctx)
	c.recordEvent(bg, req.ID, StatusMatched, "cancel_requested", req.AgentID)
	if req.AgentID != nil {
		_ = c.notifier.Withdraw(bg, notify.WithdrawEvent{
			RequestID: req.ID,
			AgentID:   *req.AgentID,
			Reason:    notify.WithdrawCancelled,
		})
	}
	return nil
}

func (c *Coordinator) finalizeCancelled(ctx context.Context, reqID types.ID, rounds int, start time.Time) error {
	prev, err := c.store.UpdateStatus(reqID, StatusCancelled)
	if err == nil {
		c.recordEvent(context.WithoutCancel(ctx), reqID, prev, StatusCancelled, nil)
	}
	c.finishCancelled(ctx, reqID, rounds, start)
	return ErrCancelled
}

func (c *Coordinator) finishCancelled(ctx context.Context, reqID types.ID, rounds int, start time.Time) {
	resolvedAt := c.now()
	if err := c.archive.SaveOutcome(context.WithoutCancel(ctx), archive.Outcome{
		RequestID:  reqID,
		Status:     string(StatusCancelled),
		Reason:     "cancelled",
		Rounds:     rounds,
		CreatedAt:  start,
		ResolvedAt: resolvedAt,
		LatencyMs:  resolvedAt.Sub(start).Milliseconds(),
	}); err != nil {
		c.log.Error("archive outcome failed", logx.String("request_id", string(reqID)), logx.Err(err))
	}
	c.metrics.CancelledTotal.Inc()
	c.metrics.RoundsPerOutcome.Observe(float64(rounds))
}

func (c *Coordinator) finalizeExhausted(ctx context.Context, reqID types.ID, rounds int, start time.Time) error {
	bg := context.WithoutCancel(ctx)
	prev, err := c.store.UpdateStatus(reqID, StatusExhausted)
	if err != nil {
		// Cancel slipped in between the last round and here.
		return ErrCancelled
	}
	c.recordEvent(bg, reqID, prev, StatusExhausted, nil)

	resolvedAt := c.now()
	if err := c.archive.SaveOutcome(bg, archive.Outcome{
		RequestID:  reqID,
		Status:     string(StatusExhausted),
		Reason:     "no supply available",
		Rounds:     rounds,
		CreatedAt:  start,
		ResolvedAt: resolvedAt,
		LatencyMs:  resolvedAt.Sub(start).Milliseconds(),
	}); err != nil {
		c.log.Error("archive outcome failed", logx.String("request_id", string(reqID)), logx.Err(err))
	}
	c.metrics.ExhaustedTotal.Inc()
	c.metrics.RoundsPerOutcome.Observe(float64(rounds))
	c.log.Info("request exhausted", logx.String("request_id", string(reqID)), logx.Int("rounds", rounds))
	return ErrNoSupply
}

func (c *Coordinator) recordEvent(ctx context.Context, reqID types.ID, from, to Status, agentID *types.ID) {
	var aid *types.ID
	if agentID != nil {
		v := *agentID
		aid = &v
	}
	if err := c.archive.AppendEvent(ctx, archive.Event{
		RequestID:  reqID,
		FromStatus: string(from),
		ToStatus:   string(to),
		AgentID:    aid,
		CreatedAt:  c.now(),
	}); err != nil {
		c.log.Error("archive event failed", logx.String("request_id", string(reqID)), logx.Err(err))
	}
}

// RunSweep nudges workers whose round deadline has passed without
// resolution, e.g. after a timer failure, so no request stays stuck in
// offering past its window. It runs until ctx is cancelled.
func (c *Coordinator) RunSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := c.now()
			c.inflight.Range(func(_, v any) bool {
				lr := v.(*liveRequest)
				lr.mu.Lock()
				stuck := !lr.roundDeadline.IsZero() &&
					now.After(lr.roundDeadline.Add(sweepGrace)) &&
					c.pendingLocked(lr) > 0
				lr.mu.Unlock()
				if stuck {
					lr.nudge()
				}
				return true
			})
		}
	}
}
