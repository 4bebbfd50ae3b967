package dispatch

import (
	"context"

	"printfarm-system/internal/domain"
)

// OfferSender pushes an offer notification to one farmer. Delivery is
// best-effort: a send failure is indistinguishable from a farmer who never
// answers, so the loop falls through to the timeout either way.
type OfferSender interface {
	SendOffer(ctx context.Context, farmerID string, order domain.OrderDescriptor) error
}

// EventSink broadcasts session state changes for display layers.
type EventSink interface {
	PublishSessionEvent(ctx context.Context, ev domain.SessionEventMessage) error
}

// AuditLog persists the dispatch trail for offline inspection. Implementations
// must tolerate being called from many sessions at once.
type AuditLog interface {
	SessionStarted(ctx context.Context, order domain.OrderDescriptor, candidateCount int) error
	OfferOutcome(ctx context.Context, orderID, farmerID string, rank int, outcome domain.CandidateOutcome) error
	SessionFinished(ctx context.Context, orderID string, status domain.SessionStatus, acceptedBy string) error
}

// NopEventSink and NopAudit stand in when no broker or database is wired.
type NopEventSink struct{}

func (NopEventSink) PublishSessionEvent(context.Context, domain.SessionEventMessage) error {
	return nil
}

type NopAudit struct{}

func (NopAudit) SessionStarted(context.Context, domain.OrderDescriptor, int) error { return nil }
func (NopAudit) OfferOutcome(context.Context, string, string, int, domain.CandidateOutcome) error {
	return nil
}
func (NopAudit) SessionFinished(context.Context, string, domain.SessionStatus, string) error {
	return nil
}
