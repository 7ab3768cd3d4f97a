package assembly

import (
	"context"
	"sync"
)

// LifetimeContext extends the standard context.Context with the identity of
// the lifetime, bean and phase a callback runs for.
type LifetimeContext struct {
	context.Context
	lifetime string
	bean     string
	phase    Phase
	reason   StopReason
	values   sync.Map
}

// NewLifetimeContext creates a LifetimeContext wrapping a standard context.Context.
func NewLifetimeContext(parent context.Context) *LifetimeContext {
	if parent == nil {
		parent = context.Background()
	}
	return &LifetimeContext{
		Context: parent,
	}
}

// WithValue returns a new LifetimeContext with the provided key-value pair.
// The new context inherits all values and identity fields from c.
func (c *LifetimeContext) WithValue(key, val any) *LifetimeContext {
	newCtx := c.clone(c.Context)
	newCtx.values.Store(key, val)
	return newCtx
}

// Value looks up key in the context's own values, then in the wrapped context.
func (c *LifetimeContext) Value(key any) any {
	if c == nil {
		return nil
	}
	if val, ok := c.values.Load(key); ok {
		return val
	}
	if c.Context != nil {
		return c.Context.Value(key)
	}
	return nil
}

// Lifetime returns the ID of the lifetime running the callback.
func (c *LifetimeContext) Lifetime() string { return c.lifetime }

// Bean returns the name of the bean the callback belongs to.
func (c *LifetimeContext) Bean() string { return c.bean }

// Phase returns the phase being executed.
func (c *LifetimeContext) Phase() Phase { return c.phase }

// Reason returns why the lifetime is stopping. It is StopNormal outside the stop phase.
func (c *LifetimeContext) Reason() StopReason { return c.reason }

// derive creates the per-callback context: ctx replaces the wrapped context,
// values carry over from c.
func (c *LifetimeContext) derive(ctx context.Context, bean string, phase Phase, reason StopReason) *LifetimeContext {
	newCtx := c.clone(ctx)
	newCtx.bean = bean
	newCtx.phase = phase
	newCtx.reason = reason
	return newCtx
}

func (c *LifetimeContext) clone(ctx context.Context) *LifetimeContext {
	newCtx := &LifetimeContext{
		Context:  ctx,
		lifetime: c.lifetime,
		bean:     c.bean,
		phase:    c.phase,
		reason:   c.reason,
	}
	c.values.Range(func(k, v any) bool {
		newCtx.values.Store(k, v)
		return true
	})
	return newCtx
}
