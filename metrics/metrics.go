// Package metrics defines the recorder contract for pipeline
// observability. The default is a no-op; servers wire the prometheus
// implementation.
package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Event names recorded by the pipeline.
const (
	EventPurchaseVerified   = "purchase_verified"
	EventPurchaseFailed     = "purchase_failed"
	EventPollAttempt        = "poll_attempt"
	EventSettlementPaid     = "settlement_paid"
	EventSettlementPending  = "settlement_pending"
	EventSettlementFailed   = "settlement_failed"
	EventReconcileProcessed = "reconcile_processed"
)
