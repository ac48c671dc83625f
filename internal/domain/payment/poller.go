package payment

import (
	"context"
	"time"
)

// Event is one observation emitted while watching a payment request.
type Event struct {
	Attempt         int
	Status          OracleStatus
	TransactionCode string
	// Err is a transient poll failure; the watch continues after it.
	Err error
	// Final marks the last event of the watch.
	Final bool
	// Exhausted is set on the final event when the attempt budget ran out
	// while the oracle still reported pending.
	Exhausted bool
}

// Outcome is the resolution of a payment attempt.
type Outcome struct {
	Status          Status
	TransactionCode string
	Message         string
}

// Poller watches a payment request until a terminal status or until the
// attempt budget is spent.
type Poller struct {
	oracle   Oracle
	attempts int
	interval time.Duration
}

// NewPoller creates a poller with a fixed budget of attempts × interval.
func NewPoller(oracle Oracle, attempts int, interval time.Duration) *Poller {
	if attempts < 1 {
		attempts = 1
	}
	return &Poller{oracle: oracle, attempts: attempts, interval: interval}
}

// Watch polls requestID and streams events on the returned channel, which is
// closed after the final event. Cancelling ctx stops the watch; the final
// event is then not emitted.
func (p *Poller) Watch(ctx context.Context, requestID string) <-chan Event {
	events := make(chan Event)

	go func() {
		defer close(events)

		timer := time.NewTimer(p.interval)
		defer timer.Stop()

		for attempt := 1; attempt <= p.attempts; attempt++ {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}

			ev := Event{Attempt: attempt}
			resp, err := p.oracle.Poll(ctx, requestID)
			if err != nil {
				ev.Err = err
				ev.Status = OraclePending
			} else {
				ev.Status = resp.Status
				ev.TransactionCode = resp.TransactionCode
			}

			if err == nil && ev.Status.Terminal() {
				ev.Final = true
			} else if attempt == p.attempts {
				ev.Final = true
				ev.Exhausted = true
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Final {
				return
			}
			timer.Reset(p.interval)
		}
	}()

	return events
}

// Await drains Watch and resolves the attempt to Paid or NotPaid.
// The returned outcome is never Processing unless ctx was cancelled, in
// which case ctx.Err() is returned.
func (p *Poller) Await(ctx context.Context, requestID string, onEvent func(Event)) (*Outcome, error) {
	for ev := range p.Watch(ctx, requestID) {
		if onEvent != nil {
			onEvent(ev)
		}
		if !ev.Final {
			continue
		}
		return p.resolve(ev), nil
	}
	return nil, ctx.Err()
}

func (p *Poller) resolve(ev Event) *Outcome {
	switch {
	case ev.Exhausted:
		return &Outcome{
			Status:  StatusNotPaid,
			Message: BudgetExhaustedMessage(p.attempts, p.interval),
		}
	case ev.Status.Succeeded():
		return &Outcome{
			Status:          StatusPaid,
			TransactionCode: ev.TransactionCode,
		}
	default:
		return &Outcome{
			Status:  StatusNotPaid,
			Message: ev.Status.FailureMessage(),
		}
	}
}
