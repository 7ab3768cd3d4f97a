package assembly_test

import (
	"context"
	"testing"
	"time"

	"github.com/centraunit/assembly"
	"github.com/centraunit/assembly/mock"
	"github.com/stretchr/testify/suite"
)

type ContextTestSuite struct {
	suite.Suite
	calls *mock.Calls
}

func (s *ContextTestSuite) SetupTest() {
	s.calls = &mock.Calls{}
}

func (s *ContextTestSuite) TestContextValuePropagation() {
	plan, err := assembly.NewBuilder().Declare(scenarioBeans(s.calls)...).Build()
	s.Require().NoError(err)
	lifetime, err := plan.NewLifetime(assembly.WithContextValue("request_id", "req-1"))
	s.Require().NoError(err)
	s.Require().NoError(lifetime.Start(bg))

	db, err := assembly.Resolve[*mock.MockDB](lifetime)
	s.Require().NoError(err)
	s.Equal("req-1", db.RequestID)

	val, err := db.GetContextValue("request_id")
	s.NoError(err)
	s.Equal("req-1", val)
}

func (s *ContextTestSuite) TestCallbackIdentity() {
	type seen struct {
		lifetime string
		bean     string
		phase    assembly.Phase
		reason   assembly.StopReason
	}
	var got []seen
	probe := stub("Probe")
	capture := func(ctx *assembly.LifetimeContext, _ any) error {
		got = append(got, seen{ctx.Lifetime(), ctx.Bean(), ctx.Phase(), ctx.Reason()})
		return nil
	}
	for _, opt := range []assembly.BeanOption{
		assembly.OnInitialize("capture", assembly.Pre, capture),
		assembly.OnStart("capture", assembly.Post, capture),
		assembly.OnStop("capture", assembly.Pre, capture),
	} {
		opt(probe)
	}
	plan, err := assembly.NewBuilder().Declare(probe).Build()
	s.Require().NoError(err)
	lifetime, err := plan.NewLifetime()
	s.Require().NoError(err)

	s.Require().NoError(lifetime.Start(bg))
	s.Require().NoError(lifetime.Stop(bg, assembly.StopOptions{Reason: assembly.StopForced}))

	id := lifetime.ID()
	s.Equal([]seen{
		{id, "Probe", assembly.PhaseInitialize, assembly.StopNormal},
		{id, "Probe", assembly.PhaseStart, assembly.StopNormal},
		{id, "Probe", assembly.PhaseStop, assembly.StopForced},
	}, got)
}

type traceKey struct{}

func (s *ContextTestSuite) TestCallerContextReachesCallbacks() {
	var traceID any
	var deadlineSet bool
	probe := stub("Probe")
	assembly.OnStart("inspect", assembly.Pre, func(ctx *assembly.LifetimeContext, _ any) error {
		traceID = ctx.Value(traceKey{})
		_, deadlineSet = ctx.Deadline()
		return nil
	})(probe)
	plan, err := assembly.NewBuilder().Declare(probe).Build()
	s.Require().NoError(err)
	lifetime, err := plan.NewLifetime()
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.WithValue(bg, traceKey{}, "trace-7"), time.Second)
	defer cancel()
	s.Require().NoError(lifetime.Start(ctx))
	s.Equal("trace-7", traceID)
	s.True(deadlineSet)
}

func (s *ContextTestSuite) TestLifetimeContextValues() {
	ctx := assembly.NewLifetimeContext(context.WithValue(bg, traceKey{}, "outer")).
		WithValue("key", "value-1")
	derived := ctx.WithValue("key", "value-2").WithValue("other", 3)

	s.Equal("value-1", ctx.Value("key"))
	s.Nil(ctx.Value("other"))
	s.Equal("value-2", derived.Value("key"))
	s.Equal(3, derived.Value("other"))
	s.Equal("outer", derived.Value(traceKey{}))

	var nilCtx *assembly.LifetimeContext
	s.Nil(nilCtx.Value("key"))
	s.NotNil(assembly.NewLifetimeContext(nil).Context)
}

func TestContextSuite(t *testing.T) {
	suite.Run(t, new(ContextTestSuite))
}
