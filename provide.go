package assembly

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// BeanOption customises a descriptor created by Provide or Instance.
type BeanOption func(*BeanDescriptor)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

var (
	initializerType = reflect.TypeOf((*Initializer)(nil)).Elem()
	starterType     = reflect.TypeOf((*Starter)(nil)).Elem()
	stopperType     = reflect.TypeOf((*Stopper)(nil)).Elem()
)

// Provide derives a bean descriptor from a constructor function. Parameters
// become positional dependencies keyed by their types, the first result is the
// provided key and an optional second result must be an error. Results that
// implement Initializer, Starter or Stopper get matching pre callbacks.
//
//	assembly.Provide("Cache", NewCache, assembly.Optional(1))
func Provide(name string, fn any, opts ...BeanOption) *BeanDescriptor {
	d := &BeanDescriptor{Name: name, Cardinality: Singleton, Owner: ApplicationRealm}
	fv := reflect.ValueOf(fn)
	if fn == nil || fv.Kind() != reflect.Func {
		d.invalid = fmt.Sprintf("Provide expects a function, got %T", fn)
		return d
	}
	ft := fv.Type()
	if ft.NumOut() == 0 || ft.NumOut() > 2 || (ft.NumOut() == 2 && ft.Out(1) != errorType) || ft.IsVariadic() {
		d.invalid = fmt.Sprintf("unsupported constructor signature %s", ft)
		return d
	}

	params := make([]reflect.Type, ft.NumIn())
	for i := range params {
		params[i] = ft.In(i)
		d.Dependencies = append(d.Dependencies, Dependency{Key: Key{Type: params[i]}, Position: i})
	}
	out := ft.Out(0)
	d.Provides = []Key{{Type: out}}
	d.Source = Class(funcName(fv), func(args []any) (any, error) {
		in := make([]reflect.Value, len(args))
		for i, arg := range args {
			v, err := argValue(arg, params[i])
			if err != nil {
				return nil, err
			}
			in[i] = v
		}
		res := fv.Call(in)
		if len(res) == 2 && !res[1].IsNil() {
			return nil, res[1].Interface().(error)
		}
		return res[0].Interface(), nil
	})
	d.Callbacks = append(d.Callbacks, interfaceCallbacks(out)...)

	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Instance declares a fixed, pre-built value provided under its dynamic type.
func Instance(name string, value any, opts ...BeanOption) *BeanDescriptor {
	d := &BeanDescriptor{
		Name:        name,
		Source:      FixedInstance(value),
		Cardinality: Singleton,
		Owner:       ApplicationRealm,
	}
	if value != nil {
		d.Provides = []Key{TypeKey(value)}
		d.Callbacks = interfaceCallbacks(reflect.TypeOf(value))
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// As replaces the provided keys.
func As(keys ...Key) BeanOption {
	return func(d *BeanDescriptor) { d.Provides = keys }
}

// Also adds provided keys next to the primary one.
func Also(keys ...Key) BeanOption {
	return func(d *BeanDescriptor) { d.Provides = append(d.Provides, keys...) }
}

// Qualified sets the qualifier of the primary provided key.
func Qualified(qualifier string) BeanOption {
	return func(d *BeanDescriptor) {
		if len(d.Provides) > 0 {
			d.Provides[0] = d.Provides[0].Named(qualifier)
		}
	}
}

// WithCardinality sets the bean cardinality.
func WithCardinality(c Cardinality) BeanOption {
	return func(d *BeanDescriptor) { d.Cardinality = c }
}

// OwnedBy sets the realm owning the bean.
func OwnedBy(r Realm) BeanOption {
	return func(d *BeanDescriptor) { d.Owner = r }
}

// Optional marks the parameters at the given positions as optional.
func Optional(positions ...int) BeanOption {
	return func(d *BeanDescriptor) {
		for _, p := range positions {
			if p >= 0 && p < len(d.Dependencies) {
				d.Dependencies[p].Optional = true
			}
		}
	}
}

// QualifiedParam sets the qualifier of the parameter at position.
func QualifiedParam(position int, qualifier string) BeanOption {
	return func(d *BeanDescriptor) {
		if position >= 0 && position < len(d.Dependencies) {
			d.Dependencies[position].Key = d.Dependencies[position].Key.Named(qualifier)
		}
	}
}

// After adds ordering-only dependencies.
func After(keys ...Key) BeanOption {
	return func(d *BeanDescriptor) { d.DependsOn = append(d.DependsOn, keys...) }
}

// Eager constructs the singleton during initialize.
func Eager() BeanOption {
	return func(d *BeanDescriptor) { d.Eager = true }
}

// WithMember adds an injectable member.
func WithMember(m Member) BeanOption {
	return func(d *BeanDescriptor) { d.Members = append(d.Members, m) }
}

// OnInitialize adds an initialize callback.
func OnInitialize(name string, ordering Ordering, fn CallbackFunc) BeanOption {
	return withCallback(PhaseInitialize, name, ordering, fn)
}

// OnStart adds a start callback.
func OnStart(name string, ordering Ordering, fn CallbackFunc) BeanOption {
	return withCallback(PhaseStart, name, ordering, fn)
}

// OnStop adds a stop callback.
func OnStop(name string, ordering Ordering, fn CallbackFunc) BeanOption {
	return withCallback(PhaseStop, name, ordering, fn)
}

func withCallback(phase Phase, name string, ordering Ordering, fn CallbackFunc) BeanOption {
	return func(d *BeanDescriptor) {
		d.Callbacks = append(d.Callbacks, Callback{Phase: phase, Ordering: ordering, Name: name, Fn: fn})
	}
}

// Setter builds a Member from a method-like function taking the bean value
// followed by its dependencies, e.g. func(c *Cache, m *Metrics).
func Setter(name string, fn any, optional ...int) Member {
	fv := reflect.ValueOf(fn)
	m := Member{Name: name}
	if fn == nil || fv.Kind() != reflect.Func || fv.Type().NumIn() < 1 {
		m.Inject = func(any, []any) error {
			return fmt.Errorf("setter %s: expected func(bean, deps...), got %T", name, fn)
		}
		return m
	}
	ft := fv.Type()
	params := make([]reflect.Type, ft.NumIn()-1)
	for i := range params {
		params[i] = ft.In(i + 1)
		m.Dependencies = append(m.Dependencies, Dependency{Key: Key{Type: params[i]}, Position: i})
	}
	for _, p := range optional {
		if p >= 0 && p < len(m.Dependencies) {
			m.Dependencies[p].Optional = true
		}
	}
	m.Inject = func(instance any, args []any) error {
		recv, err := argValue(instance, ft.In(0))
		if err != nil {
			return err
		}
		in := []reflect.Value{recv}
		for i, arg := range args {
			v, err := argValue(arg, params[i])
			if err != nil {
				return err
			}
			in = append(in, v)
		}
		res := fv.Call(in)
		if len(res) > 0 && res[len(res)-1].Type() == errorType && !res[len(res)-1].IsNil() {
			return res[len(res)-1].Interface().(error)
		}
		return nil
	}
	return m
}

func argValue(arg any, t reflect.Type) (reflect.Value, error) {
	if arg == nil || arg == Absent || arg == NoInstance {
		return reflect.Zero(t), nil
	}
	v := reflect.ValueOf(arg)
	if !v.Type().AssignableTo(t) {
		return reflect.Value{}, &TypeMismatchError{Expected: t.String(), Got: v.Type().String()}
	}
	return v, nil
}

// interfaceCallbacks wires the lifecycle interfaces of t. Values that are not
// real instances (NoInstance for stateless or per-request beans) are skipped.
func interfaceCallbacks(t reflect.Type) []Callback {
	var cbs []Callback
	if t.Implements(initializerType) {
		cbs = append(cbs, Callback{Phase: PhaseInitialize, Ordering: Pre, Name: "OnInitialize",
			Fn: func(ctx *LifetimeContext, instance any) error {
				if v, ok := instance.(Initializer); ok {
					return v.OnInitialize(ctx)
				}
				return nil
			}})
	}
	if t.Implements(starterType) {
		cbs = append(cbs, Callback{Phase: PhaseStart, Ordering: Pre, Name: "OnStart",
			Fn: func(ctx *LifetimeContext, instance any) error {
				if v, ok := instance.(Starter); ok {
					return v.OnStart(ctx)
				}
				return nil
			}})
	}
	if t.Implements(stopperType) {
		cbs = append(cbs, Callback{Phase: PhaseStop, Ordering: Pre, Name: "OnStop",
			Fn: func(ctx *LifetimeContext, instance any) error {
				if v, ok := instance.(Stopper); ok {
					return v.OnStop(ctx)
				}
				return nil
			}})
	}
	return cbs
}

// funcName returns the short name of a function or method value, e.g. "NewCache".
func funcName(fv reflect.Value) string {
	name := runtime.FuncForPC(fv.Pointer()).Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, "-fm")
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	// method values carry their receiver, e.g. "(*Calls).NewDb"
	if strings.HasPrefix(name, "(") {
		if i := strings.Index(name, ")."); i >= 0 {
			name = name[i+2:]
		}
	}
	return name
}
