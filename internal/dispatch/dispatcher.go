package dispatch

import (
	"context"
	"errors"
	"time"

	"printfarm-system/internal/common/logger"
	"printfarm-system/internal/domain"
)

// ErrDuplicateSession means Start was called for an order that still has an
// active session; the caller must cancel it or wait for it to finish.
var ErrDuplicateSession = errors.New("order already has an active dispatch session")

// DefaultOfferTimeout bounds one candidate's decision window when the caller
// does not override it.
const DefaultOfferTimeout = 25 * time.Second

// Dispatcher walks an order's ranked candidate list one farmer at a time:
// send the offer, wait bounded for accept/decline, advance on decline or
// timeout, stop on the first acceptance or when the list runs out.
type Dispatcher struct {
	lg           *logger.Logger
	sender       OfferSender
	events       EventSink
	audit        AuditLog
	registry     *Registry
	mailbox      *Mailbox
	offerTimeout time.Duration
}

func New(lg *logger.Logger, sender OfferSender, events EventSink, audit AuditLog, offerTimeout time.Duration) *Dispatcher {
	if events == nil {
		events = NopEventSink{}
	}
	if audit == nil {
		audit = NopAudit{}
	}
	if offerTimeout <= 0 {
		offerTimeout = DefaultOfferTimeout
	}
	return &Dispatcher{
		lg:           lg,
		sender:       sender,
		events:       events,
		audit:        audit,
		registry:     NewRegistry(),
		mailbox:      NewMailbox(),
		offerTimeout: offerTimeout,
	}
}

// Start runs the full dispatch for one order and blocks until a terminal
// outcome. The calling goroutine is the session's driving loop; sessions for
// different orders are fully independent.
func (d *Dispatcher) Start(ctx context.Context, order domain.OrderDescriptor, candidates []domain.Candidate, perOfferTimeout time.Duration) (domain.DispatchResult, error) {
	if perOfferTimeout <= 0 {
		perOfferTimeout = d.offerTimeout
	}
	if len(candidates) == 0 {
		d.lg.Info("dispatch_no_candidates", map[string]any{"order_id": order.OrderID})
		return domain.DispatchResult{Status: domain.DispatchNoCandidates}, nil
	}

	s := newSession(order, candidates)
	if !d.registry.InsertIfAbsent(s) {
		return domain.DispatchResult{}, ErrDuplicateSession
	}
	d.lg.Info("dispatch_started", map[string]any{
		"order_id": order.OrderID, "candidates": len(candidates), "offer_timeout": perOfferTimeout.String(),
	})
	if err := d.audit.SessionStarted(ctx, order, len(candidates)); err != nil {
		d.lg.Error("audit_write_failed", err, map[string]any{"order_id": order.OrderID})
	}

	for i := range candidates {
		if s.cancelRequested() || ctx.Err() != nil {
			return d.finish(ctx, s, domain.SessionCancelled, ""), nil
		}

		c := s.markInFlight(i)
		d.publishEvent(ctx, s, c.FarmerID)

		// Open the response slot before sending so an instant reply cannot
		// slip past the waiter.
		w := d.mailbox.Register(order.OrderID, c.FarmerID)
		if err := d.sender.SendOffer(ctx, c.FarmerID, order); err != nil {
			// Equivalent to silence from the farmer; the timeout advances us.
			d.lg.Error("offer_send_failed", err, map[string]any{
				"order_id": order.OrderID, "farmer_id": c.FarmerID, "rank": c.Rank,
			})
		}

		verdict := w.Await(ctx, perOfferTimeout, s.CancelCh())
		d.lg.Debug("offer_resolved", map[string]any{
			"order_id": order.OrderID, "farmer_id": c.FarmerID, "rank": c.Rank, "verdict": verdict.String(),
		})

		switch verdict {
		case VerdictAccepted:
			s.recordOutcome(domain.OutcomeAccepted)
			d.recordAudit(ctx, order.OrderID, c, domain.OutcomeAccepted)
			res := d.finish(ctx, s, domain.SessionCompleted, c.FarmerID)
			return res, nil
		case VerdictDeclined:
			s.recordOutcome(domain.OutcomeDeclined)
			d.recordAudit(ctx, order.OrderID, c, domain.OutcomeDeclined)
		case VerdictTimedOut:
			s.recordOutcome(domain.OutcomeTimedOut)
			d.recordAudit(ctx, order.OrderID, c, domain.OutcomeTimedOut)
		case VerdictCancelled:
			return d.finish(ctx, s, domain.SessionCancelled, ""), nil
		}
	}

	return d.finish(ctx, s, domain.SessionExhausted, ""), nil
}

// finish performs the terminal transition, unregisters the session and emits
// the closing audit row and event.
func (d *Dispatcher) finish(ctx context.Context, s *Session, status domain.SessionStatus, acceptedBy string) domain.DispatchResult {
	s.terminate(status, acceptedBy)
	d.registry.Remove(s.OrderID())
	if err := d.audit.SessionFinished(ctx, s.OrderID(), status, acceptedBy); err != nil {
		d.lg.Error("audit_write_failed", err, map[string]any{"order_id": s.OrderID()})
	}
	d.publishEvent(ctx, s, acceptedBy)
	d.lg.Info("dispatch_finished", map[string]any{
		"order_id": s.OrderID(), "status": string(status), "accepted_by": acceptedBy,
	})

	switch status {
	case domain.SessionCompleted:
		return domain.DispatchResult{Status: domain.DispatchAssigned, FarmerID: acceptedBy}
	case domain.SessionCancelled:
		return domain.DispatchResult{Status: domain.DispatchCancelled}
	default:
		return domain.DispatchResult{Status: domain.DispatchNoFarmer}
	}
}

func (d *Dispatcher) recordAudit(ctx context.Context, orderID string, c domain.Candidate, outcome domain.CandidateOutcome) {
	if err := d.audit.OfferOutcome(ctx, orderID, c.FarmerID, c.Rank, outcome); err != nil {
		d.lg.Error("audit_write_failed", err, map[string]any{"order_id": orderID, "farmer_id": c.FarmerID})
	}
}

func (d *Dispatcher) publishEvent(ctx context.Context, s *Session, farmerID string) {
	snap := s.Snapshot()
	ev := domain.SessionEventMessage{
		OrderID:      snap.OrderID,
		Status:       snap.Status,
		FarmerID:     farmerID,
		CurrentIndex: snap.CurrentIndex,
		At:           snap.UpdatedAt,
	}
	if err := d.events.PublishSessionEvent(ctx, ev); err != nil {
		d.lg.Error("event_publish_failed", err, map[string]any{"order_id": snap.OrderID})
	}
}

// SubmitResponse feeds a farmer's decision into the matching wait. Stale and
// duplicate deliveries are dropped; only the current in-flight pairing can
// resolve a wait.
func (d *Dispatcher) SubmitResponse(orderID, farmerID string, accepted bool) error {
	err := d.mailbox.Submit(orderID, farmerID, accepted)
	if errors.Is(err, ErrNoActiveWaiter) {
		d.lg.Debug("stale_response_ignored", map[string]any{
			"order_id": orderID, "farmer_id": farmerID, "accepted": accepted,
		})
	}
	return err
}

// Cancel interrupts an active session, waking its driving loop even mid-wait.
// Returns false when the order has no active session.
func (d *Dispatcher) Cancel(orderID string) bool {
	s, ok := d.registry.Get(orderID)
	if !ok {
		return false
	}
	s.signalCancel()
	d.lg.Info("dispatch_cancel_requested", map[string]any{"order_id": orderID})
	return true
}

// Status returns a snapshot of an active session.
func (d *Dispatcher) Status(orderID string) (domain.SessionSnapshot, bool) {
	s, ok := d.registry.Get(orderID)
	if !ok {
		return domain.SessionSnapshot{}, false
	}
	return s.Snapshot(), true
}

// Active lists snapshots of every in-flight session, oldest first.
func (d *Dispatcher) Active() []domain.SessionSnapshot {
	return d.registry.Snapshot()
}
