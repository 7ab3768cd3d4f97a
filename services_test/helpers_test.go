package assembly_test

import (
	"context"

	"github.com/centraunit/assembly"
	"github.com/centraunit/assembly/mock"
)

// scenarioBeans declares Logger, Db(Logger), Cache(Db, Logger) and
// App(Cache), deliberately in reverse order.
func scenarioBeans(calls *mock.Calls) []*assembly.BeanDescriptor {
	return []*assembly.BeanDescriptor{
		assembly.Provide("App", calls.NewApp),
		assembly.Provide("Cache", calls.NewCache, assembly.Also(assembly.KeyOf[mock.Cache]())),
		assembly.Provide("Db", calls.NewDb),
		assembly.Provide("Logger", calls.NewLogger),
	}
}

// stub declares a bean providing the string key named after it.
func stub(name string, deps ...assembly.Key) *assembly.BeanDescriptor {
	return &assembly.BeanDescriptor{
		Name:         name,
		Provides:     []assembly.Key{assembly.NamedKey[string](name)},
		Source:       assembly.Factory("new"+name, func([]any) (any, error) { return name, nil }),
		Dependencies: assembly.Requires(deps...),
	}
}

func key(name string) assembly.Key {
	return assembly.NamedKey[string](name)
}

// record returns a callback writing "<bean>.<label>" to calls.
func record(calls *mock.Calls, label string) assembly.CallbackFunc {
	return func(ctx *assembly.LifetimeContext, _ any) error {
		calls.Record(ctx.Bean() + "." + label)
		return nil
	}
}

func names(ops []assembly.Operation) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.Bean + "." + op.Callback
	}
	return out
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

var bg = context.Background()
