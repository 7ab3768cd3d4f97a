package assembly

// Package assembly resolves bean dependencies, allocates singleton storage and
// orders lifecycle callbacks for a lifetime.

// Cardinality defines how many instances of a bean exist and how they are shared.
type Cardinality string

// Available bean cardinalities
const (
	// Singleton shares one instance per lifetime, stored in the lifetime's arena.
	Singleton Cardinality = "singleton"
	// Stateless beans have no instance at all; consumers receive NoInstance.
	Stateless Cardinality = "stateless"
	// PerRequest constructs a fresh instance every time the bean is produced.
	PerRequest Cardinality = "per-request"
)

// Phase is one of the three lifecycle phases.
type Phase string

const (
	PhaseInitialize Phase = "initialize"
	PhaseStart      Phase = "start"
	PhaseStop       Phase = "stop"
)

// Ordering selects the pre or post sub-bucket of a phase.
type Ordering int

const (
	Pre Ordering = iota
	Post
)

func (o Ordering) String() string {
	if o == Post {
		return "post"
	}
	return "pre"
}

// CallbackFunc is a lifecycle callback. instance is the bean value, or
// NoInstance for stateless and per-request beans.
type CallbackFunc func(ctx *LifetimeContext, instance any) error

// ConstructFunc builds a bean value from its resolved arguments, in declared
// dependency order. Unresolved optional arguments are passed as Absent.
type ConstructFunc func(args []any) (any, error)

// Initializer is implemented by bean values that want an initialize callback.
// Provide registers it automatically.
type Initializer interface {
	OnInitialize(ctx *LifetimeContext) error
}

// Starter is implemented by bean values that want a start callback.
type Starter interface {
	OnStart(ctx *LifetimeContext) error
}

// Stopper is implemented by bean values that want a stop callback.
// It should release every resource acquired by the bean.
type Stopper interface {
	OnStop(ctx *LifetimeContext) error
}

type marker string

func (m marker) String() string { return string(m) }

var (
	// NoInstance is the value produced by stateless beans.
	NoInstance any = marker("assembly.NoInstance")

	// Absent is passed in place of an optional dependency that has no provider.
	Absent any = marker("assembly.Absent")
)
