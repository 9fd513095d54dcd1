package subscription

import (
	"context"

	"github.com/jonesrussell/blockwatch/internal/models"
)

// Callbacks is an observer's event handler set. Only the callbacks relevant
// to the observer's scope are invoked; nil callbacks are skipped. Callbacks
// run on the connection's dispatch goroutine, one event at a time.
type Callbacks struct {
	OnJobCreated   func(job *models.Job)
	OnJobProgress  func(job *models.Job)
	OnJobCompleted func(job *models.Job)
	OnJobSkipped   func(skip models.SkippedPayload)

	OnValidationProgress func(progress models.ValidationProgress)
	OnValidationComplete func(result models.ValidationResult)

	OnStatsUpdated func()
}

// Observer is one subscriber with a scope and a callback set. Observers
// multiplex over the manager's shared connection; tearing one down leaves
// the others untouched.
type Observer struct {
	manager    *Manager
	scope      Scope
	callbacks  Callbacks
	subscribed bool
}

// Scope returns the observer's visibility scope.
func (o *Observer) Scope() Scope {
	return o.scope
}

// Subscribe sends the subscribe control message for this observer's scope.
// Repeated calls are no-ops; the message goes out once per connection
// lifetime per distinct scope across all observers.
func (o *Observer) Subscribe(ctx context.Context) error {
	return o.manager.subscribe(ctx, o)
}

// Unsubscribe reverses Subscribe. The underlying channel is only released
// once no other observer shares the scope.
func (o *Observer) Unsubscribe(ctx context.Context) error {
	return o.manager.unsubscribe(ctx, o)
}

// Close unsubscribes and detaches the observer's callbacks. An event already
// in flight over the wire may still be delivered to other observers but not
// to this one.
func (o *Observer) Close(ctx context.Context) error {
	err := o.manager.unsubscribe(ctx, o)
	o.manager.detach(o)
	return err
}
