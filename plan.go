package assembly

import (
	"context"
	"time"

	"github.com/centraunit/assembly/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Builder collects bean descriptors for one scope and compiles them into a Plan.
// A Builder is not safe for concurrent use.
type Builder struct {
	opts      options
	descs     []*BeanDescriptor
	externals []external
}

type external struct {
	key  Key
	name string
	fn   func() (any, error)
}

// NewBuilder creates an empty Builder.
func NewBuilder(opts ...Option) *Builder {
	return &Builder{opts: newOptions(options{}, opts)}
}

// Declare adds bean descriptors. Descriptors must not be changed afterwards.
func (b *Builder) Declare(descs ...*BeanDescriptor) *Builder {
	b.descs = append(b.descs, descs...)
	return b
}

// External binds key to a producer that lives outside the bean graph. fn is
// called every time the key is produced.
func (b *Builder) External(key Key, name string, fn func() (any, error)) *Builder {
	b.externals = append(b.externals, external{key: key, name: name, fn: fn})
	return b
}

// Plan is the immutable result of a build: resolved nodes, the slot layout and
// the six ordered operation lists. A Plan is safe for concurrent use and can
// run any number of lifetimes.
type Plan struct {
	opts     options
	parent   *Plan
	registry *Registry
	arena    *Arena
	order    []*bean
	lists    [operationLists][]Operation
}

// Build resolves every declared dependency and orders the lifecycle
// callbacks. All violations found are returned together in a *BuildError.
func (b *Builder) Build() (*Plan, error) {
	began := time.Now()
	log := b.opts.logger
	_, span := telemetry.StartSpan(context.Background(), b.opts.tracer, "assembly.build",
		attribute.Int("assembly.beans", len(b.descs)))

	plan, err := b.build()
	b.opts.metrics.Build(err)
	telemetry.EndSpan(span, err)
	if err != nil {
		log.Warn("plan build failed", zap.Int("beans", len(b.descs)), zap.Error(err))
		return nil, err
	}
	log.Debug("plan built",
		zap.Int("beans", len(plan.order)),
		zap.Int("slots", plan.arena.Size()),
		zap.Int("absent", len(plan.registry.absent)),
		zap.Duration("elapsed", time.Since(began)),
	)
	return plan, nil
}

func (b *Builder) build() (*Plan, error) {
	var parentRegistry *Registry
	if b.opts.parent != nil {
		parentRegistry = b.opts.parent.registry
	}
	registry := newRegistry(parentRegistry)
	var violations []error

	beans := make([]*bean, 0, len(b.descs))
	realmOrder := make(map[string]int)
	for _, d := range b.descs {
		if d == nil {
			violations = append(violations, &InvalidDescriptorError{Bean: "<nil>", Reason: "nil descriptor"})
			continue
		}
		if err := d.validate(); err != nil {
			violations = append(violations, err)
			continue
		}
		bn := &bean{desc: d}
		bn.node = newNode(bn, nil)
		for i := range d.Members {
			bn.members = append(bn.members, newNode(bn, &d.Members[i]))
		}
		if d.Owner.Framework {
			if _, ok := realmOrder[d.Owner.Name]; !ok {
				realmOrder[d.Owner.Name] = len(realmOrder)
			}
		}
		beans = append(beans, bn)
	}

	for _, e := range b.externals {
		fn := e.fn
		if fn == nil {
			violations = append(violations, &InvalidDescriptorError{Bean: e.name, Reason: "external producer is nil"})
			continue
		}
		if err := registry.registerExternal(e.key, e.name, func(*frame) (any, error) { return fn() }); err != nil {
			violations = append(violations, err)
		}
	}
	for _, bn := range beans {
		for _, key := range bn.desc.Provides {
			if err := registry.Register(key, "bean "+bn.name(), bn.node); err != nil {
				violations = append(violations, err)
			}
		}
	}

	var orderingMisses []MissingEntry
	for _, bn := range beans {
		registry.resolve(bn.node)
		for _, m := range bn.members {
			registry.resolve(m)
		}
		orderingMisses = append(orderingMisses, registry.resolveOrdering(bn)...)
	}
	missing := registry.drain()
	if len(orderingMisses) > 0 {
		if missing == nil {
			missing = &MissingDependencyError{}
		}
		missing.Entries = append(missing.Entries, orderingMisses...)
	}
	if missing != nil {
		violations = append(violations, missing)
	}
	violations = append(violations, findCycles(beans)...)
	if len(violations) > 0 {
		return nil, &BuildError{Violations: violations}
	}

	order := dependencyOrder(precedence(beans, realmOrder))
	arena := &Arena{}
	for i, bn := range order {
		bn.index = i
		d := bn.desc
		if d.Cardinality == Singleton && d.Source.Kind != SourceInstance {
			bn.node.slot = arena.reserve(bn.node)
		}
	}
	for _, bn := range order {
		bn.node.compose()
		for _, m := range bn.members {
			m.compose()
		}
	}

	return &Plan{
		opts:     b.opts,
		parent:   b.opts.parent,
		registry: registry,
		arena:    arena,
		order:    order,
		lists:    schedule(order),
	}, nil
}

// DependencyOrder returns bean names with every bean after its dependencies.
func (p *Plan) DependencyOrder() []string {
	names := make([]string, len(p.order))
	for i, bn := range p.order {
		names[i] = bn.name()
	}
	return names
}

// Operations returns a copy of one operation list.
func (p *Plan) Operations(list OperationList) []Operation {
	if list < 0 || list >= operationLists {
		return nil
	}
	return append([]Operation(nil), p.lists[list]...)
}

// Registry returns the registry of the plan's scope.
func (p *Plan) Registry() *Registry { return p.registry }

// Slots returns the number of storage slots a lifetime of this plan allocates.
func (p *Plan) Slots() int { return p.arena.Size() }

// Parent returns the plan this plan resolves unbound keys against, if any.
func (p *Plan) Parent() *Plan { return p.parent }
