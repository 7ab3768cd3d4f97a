package assembly

import (
	"strings"
)

// SourceKind tells how a bean value comes into existence.
type SourceKind int

const (
	SourceClass SourceKind = iota
	SourceFactory
	SourceInstance
)

func (k SourceKind) String() string {
	switch k {
	case SourceClass:
		return "constructor"
	case SourceFactory:
		return "factory"
	case SourceInstance:
		return "instance"
	default:
		return "unknown"
	}
}

// Source is the origin of a bean value.
type Source struct {
	Kind SourceKind
	// Name is the constructor or factory name used in diagnostics.
	Name      string
	Construct ConstructFunc
	Instance  any
}

// Class returns a source backed by a type's constructor.
func Class(name string, construct ConstructFunc) Source {
	return Source{Kind: SourceClass, Name: name, Construct: construct}
}

// Factory returns a source backed by a factory function.
func Factory(name string, construct ConstructFunc) Source {
	return Source{Kind: SourceFactory, Name: name, Construct: construct}
}

// FixedInstance returns a source for a pre-built value. Fixed instances need
// no storage slot and take no dependencies.
func FixedInstance(instance any) Source {
	return Source{Kind: SourceInstance, Instance: instance}
}

// Dependency is one declared dependency of a constructor, factory or member.
// Position is its index in the signature and is assigned on Declare.
type Dependency struct {
	Key      Key
	Optional bool
	Position int
}

// Requires returns non-optional dependencies for keys, in order.
func Requires(keys ...Key) []Dependency {
	deps := make([]Dependency, len(keys))
	for i, k := range keys {
		deps[i] = Dependency{Key: k, Position: i}
	}
	return deps
}

// Member is an injectable method or field of a bean. Inject runs after the
// bean is constructed, with its own resolved arguments.
type Member struct {
	Name         string
	Dependencies []Dependency
	Inject       func(instance any, args []any) error
}

// Callback is one declared lifecycle callback.
type Callback struct {
	Phase    Phase
	Ordering Ordering
	Name     string
	Fn       CallbackFunc
}

// Realm is the owner of a bean. Framework realms are ordered before the
// application realm; framework realms tie-break by first declaration.
type Realm struct {
	Name      string
	Framework bool
}

// ApplicationRealm owns beans declared by application code.
var ApplicationRealm = Realm{Name: "application"}

// FrameworkRealm returns the realm of a framework extension.
func FrameworkRealm(name string) Realm {
	return Realm{Name: name, Framework: true}
}

// BeanDescriptor is the static metadata of one declared bean.
// It must not be mutated after Declare.
type BeanDescriptor struct {
	Name string
	// Provides lists the keys the bean is registered under. The first is primary.
	Provides     []Key
	Source       Source
	Cardinality  Cardinality
	Dependencies []Dependency
	Members      []Member
	// DependsOn adds ordering-only edges. A bean listing itself is ignored.
	DependsOn []Key
	Callbacks []Callback
	Owner     Realm
	// Eager constructs a singleton during initialize even if nothing reads it.
	Eager bool

	invalid string
}

// Signature renders the constructor signature, e.g. "NewCache(*Db, *Logger)".
func (d *BeanDescriptor) Signature() string {
	name := d.Source.Name
	if name == "" {
		name = d.Name
	}
	return name + renderParams(d.Dependencies)
}

func (d *BeanDescriptor) primaryKey() Key {
	if len(d.Provides) == 0 {
		return Key{}
	}
	return d.Provides[0]
}

func (d *BeanDescriptor) target() string {
	return d.Source.Kind.String() + " " + d.Signature()
}

func (d *BeanDescriptor) memberTarget(m *Member) string {
	owner := d.Name
	return "method " + owner + "." + m.Name + renderParams(m.Dependencies)
}

func renderParams(deps []Dependency) string {
	params := make([]string, len(deps))
	for i, dep := range deps {
		params[i] = dep.Key.String()
	}
	return "(" + strings.Join(params, ", ") + ")"
}

// validate checks descriptor invariants and assigns dependency positions.
func (d *BeanDescriptor) validate() error {
	invalid := func(reason string) error {
		return &InvalidDescriptorError{Bean: d.Name, Reason: reason}
	}
	if d.invalid != "" {
		return invalid(d.invalid)
	}
	if d.Name == "" {
		return invalid("missing name")
	}
	if d.Cardinality == "" {
		d.Cardinality = Singleton
	}
	switch d.Cardinality {
	case Singleton, Stateless, PerRequest:
	default:
		return invalid("unknown cardinality " + string(d.Cardinality))
	}
	for _, k := range d.Provides {
		if k.IsZero() {
			return invalid("provides a key without type")
		}
	}
	switch d.Source.Kind {
	case SourceInstance:
		if d.Source.Instance == nil {
			return &NilServiceError{Bean: d.Name}
		}
		if len(d.Dependencies) > 0 || len(d.Members) > 0 {
			return invalid("fixed instance cannot declare dependencies or members")
		}
		if d.Cardinality != Singleton {
			return invalid("fixed instance must be a singleton")
		}
	case SourceClass, SourceFactory:
		if d.Source.Construct == nil && d.Cardinality != Stateless {
			return invalid("missing construct function")
		}
	default:
		return invalid("unknown source kind")
	}
	for i := range d.Dependencies {
		if d.Dependencies[i].Key.IsZero() {
			return invalid("dependency without key")
		}
		d.Dependencies[i].Position = i
	}
	for mi := range d.Members {
		m := &d.Members[mi]
		if m.Inject == nil {
			return invalid("member " + m.Name + " has no inject function")
		}
		for i := range m.Dependencies {
			m.Dependencies[i].Position = i
		}
	}
	for _, cb := range d.Callbacks {
		if cb.Fn == nil {
			return invalid("callback " + cb.Name + " has no function")
		}
		switch cb.Phase {
		case PhaseInitialize, PhaseStart, PhaseStop:
		default:
			return invalid("callback " + cb.Name + " has unknown phase " + string(cb.Phase))
		}
	}
	if d.Owner.Name == "" {
		d.Owner = ApplicationRealm
	}
	return nil
}
