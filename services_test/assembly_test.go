package assembly_test

import (
	"testing"

	"github.com/centraunit/assembly"
	"github.com/centraunit/assembly/mock"
	"github.com/stretchr/testify/suite"
)

type AssemblyTestSuite struct {
	suite.Suite
	calls *mock.Calls
}

func (s *AssemblyTestSuite) SetupTest() {
	s.calls = &mock.Calls{}
}

func (s *AssemblyTestSuite) build(descs ...*assembly.BeanDescriptor) *assembly.Plan {
	plan, err := assembly.NewBuilder().Declare(descs...).Build()
	s.Require().NoError(err)
	return plan
}

func (s *AssemblyTestSuite) lifetime(plan *assembly.Plan, opts ...assembly.Option) *assembly.Controller {
	lifetime, err := plan.NewLifetime(opts...)
	s.Require().NoError(err)
	return lifetime
}

func (s *AssemblyTestSuite) TestScenarioOrder() {
	plan := s.build(scenarioBeans(s.calls)...)

	s.Equal([]string{"Logger", "Db", "Cache", "App"}, plan.DependencyOrder())
	s.Equal([]string{"Logger.OnInitialize", "Cache.OnInitialize"}, names(plan.Operations(assembly.InitPre)))
	s.Equal([]string{"Db.OnStart", "App.OnStart"}, names(plan.Operations(assembly.StartPre)))
	s.Equal([]string{"App.OnStop", "Cache.OnStop", "Db.OnStop", "Logger.OnStop"}, names(plan.Operations(assembly.StopPre)))
	s.Equal(4, plan.Slots())
}

func (s *AssemblyTestSuite) TestScenarioLifetime() {
	lifetime := s.lifetime(s.build(scenarioBeans(s.calls)...))

	s.Require().NoError(lifetime.Start(bg))
	s.Equal(assembly.StateRunning, lifetime.State())
	s.Require().NoError(lifetime.Stop(bg, assembly.StopOptions{}))
	s.Equal(assembly.StateTerminated, lifetime.State())

	s.Equal([]string{
		"new Logger", "Logger.OnInitialize",
		"new Db", "new Cache", "Cache.OnInitialize",
		"Db.OnStart",
		"new App", "App.OnStart",
		"App.OnStop", "Cache.OnStop", "Db.OnStop", "Logger.OnStop",
	}, s.calls.Entries())
}

func (s *AssemblyTestSuite) TestResolveSharesSingletons() {
	lifetime := s.lifetime(s.build(scenarioBeans(s.calls)...))

	app, err := assembly.Resolve[*mock.App](lifetime)
	s.Require().NoError(err)
	cache, err := assembly.Resolve[mock.Cache](lifetime)
	s.Require().NoError(err)
	db, err := assembly.Resolve[*mock.MockDB](lifetime)
	s.Require().NoError(err)

	s.Same(cache, app.Cache)
	s.Same(db, cache.(*mock.MockCache).DB)
	s.Same(db.Logger, cache.(*mock.MockCache).Logger)
	s.Equal(1, s.calls.Count("new Logger"))
}

func (s *AssemblyTestSuite) TestOptionalDependencyAbsent() {
	plan := s.build(assembly.Provide("Repo", mock.NewRepo, assembly.Optional(0)))
	s.Equal([]assembly.Key{assembly.KeyOf[*mock.Metrics]()}, plan.Registry().Absent())

	repo, err := assembly.Resolve[*mock.Repo](s.lifetime(plan))
	s.Require().NoError(err)
	s.Nil(repo.Metrics)
}

func (s *AssemblyTestSuite) TestOptionalDependencyReceivesAbsentMarker() {
	var got []any
	repo := &assembly.BeanDescriptor{
		Name:     "Repo",
		Provides: []assembly.Key{assembly.KeyOf[*mock.Repo]()},
		Source: assembly.Factory("NewRepo", func(args []any) (any, error) {
			got = args
			return &mock.Repo{}, nil
		}),
		Dependencies: []assembly.Dependency{{Key: assembly.KeyOf[*mock.Metrics](), Optional: true}},
	}
	_, err := assembly.Resolve[*mock.Repo](s.lifetime(s.build(repo)))
	s.Require().NoError(err)
	s.Equal([]any{assembly.Absent}, got)
}

func (s *AssemblyTestSuite) TestOptionalDependencyPresent() {
	metrics := &mock.Metrics{Name: "requests"}
	plan := s.build(
		assembly.Provide("Repo", mock.NewRepo, assembly.Optional(0)),
		assembly.Instance("Metrics", metrics),
	)
	s.Empty(plan.Registry().Absent())

	repo, err := assembly.Resolve[*mock.Repo](s.lifetime(plan))
	s.Require().NoError(err)
	s.Same(metrics, repo.Metrics)
}

func (s *AssemblyTestSuite) TestMemberInjection() {
	metrics := &mock.Metrics{Name: "cache"}
	plan := s.build(
		assembly.Provide("Logger", s.calls.NewLogger),
		assembly.Provide("Db", s.calls.NewDb),
		assembly.Provide("Cache", s.calls.NewCache,
			assembly.WithMember(assembly.Setter("SetMetrics", (*mock.MockCache).SetMetrics))),
		assembly.Instance("Metrics", metrics),
	)

	cache, err := assembly.Resolve[*mock.MockCache](s.lifetime(plan))
	s.Require().NoError(err)
	s.Same(metrics, cache.Metrics)
}

func (s *AssemblyTestSuite) TestQualifiedKeys() {
	primary := &mock.Metrics{Name: "primary"}
	replica := &mock.Metrics{Name: "replica"}
	plan := s.build(
		assembly.Instance("PrimaryMetrics", primary, assembly.Qualified("primary")),
		assembly.Instance("ReplicaMetrics", replica, assembly.Qualified("replica")),
		assembly.Provide("Repo", mock.NewRepo, assembly.QualifiedParam(0, "replica")),
	)
	lifetime := s.lifetime(plan)

	repo, err := assembly.Resolve[*mock.Repo](lifetime)
	s.Require().NoError(err)
	s.Same(replica, repo.Metrics)

	got, err := assembly.Resolve[*mock.Metrics](lifetime, "primary")
	s.Require().NoError(err)
	s.Same(primary, got)
}

func (s *AssemblyTestSuite) TestExternalProducer() {
	metrics := &mock.Metrics{Name: "external"}
	plan, err := assembly.NewBuilder().
		External(assembly.KeyOf[*mock.Metrics](), "registry", func() (any, error) { return metrics, nil }).
		Declare(assembly.Provide("Repo", mock.NewRepo)).
		Build()
	s.Require().NoError(err)

	repo, err := assembly.Resolve[*mock.Repo](s.lifetime(plan))
	s.Require().NoError(err)
	s.Same(metrics, repo.Metrics)
	s.Equal([]string{"Repo"}, plan.DependencyOrder())
}

func (s *AssemblyTestSuite) TestNestedDependencies() {
	plan := s.build(
		assembly.Instance("Deep3", &mock.DeepImpl3{}, assembly.As(assembly.KeyOf[mock.DeepService3]())),
		assembly.Provide("Deep2", mock.NewDeepImpl2, assembly.As(assembly.KeyOf[mock.DeepService2]())),
		assembly.Provide("Deep1", mock.NewDeepImpl1, assembly.As(assembly.KeyOf[mock.DeepService1]())),
	)
	lifetime := s.lifetime(plan)
	s.Require().NoError(lifetime.Initialize(bg))

	resolved, err := assembly.Resolve[mock.DeepService1](lifetime)
	s.Require().NoError(err)
	s.Equal("deep", resolved.GetService2().GetService3().GetValue())
}

func (s *AssemblyTestSuite) TestParentScope() {
	parentPlan := s.build(assembly.Provide("Logger", s.calls.NewLogger))
	childPlan, err := assembly.NewBuilder(assembly.WithParent(parentPlan)).
		Declare(assembly.Provide("Db", s.calls.NewDb)).
		Build()
	s.Require().NoError(err)
	s.Equal([]string{"Db"}, childPlan.DependencyOrder())
	s.Same(parentPlan, childPlan.Parent())

	_, err = childPlan.NewLifetime()
	s.ErrorIs(err, assembly.ErrNoParentLifetime)

	_, err = childPlan.NewLifetime(assembly.WithParentLifetime(s.lifetime(s.build(stub("Unrelated")))))
	s.ErrorIs(err, assembly.ErrNoParentLifetime)

	parent := s.lifetime(parentPlan)
	child := s.lifetime(childPlan, assembly.WithParentLifetime(parent))
	db, err := assembly.Resolve[*mock.MockDB](child)
	s.Require().NoError(err)
	logger, err := assembly.Resolve[*mock.Logger](parent)
	s.Require().NoError(err)
	s.Same(logger, db.Logger)

	fromChild, err := assembly.Resolve[*mock.Logger](child)
	s.Require().NoError(err)
	s.Same(logger, fromChild)
	s.Equal(1, s.calls.Count("new Logger"))
}

func TestAssemblySuite(t *testing.T) {
	suite.Run(t, new(AssemblyTestSuite))
}
