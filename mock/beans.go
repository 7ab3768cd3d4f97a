package mock

import (
	"fmt"
	"strings"
	"sync"

	"github.com/centraunit/assembly"
)

// Calls records constructor and lifecycle calls of the mock beans, in order.
// Constructors are methods on Calls so every bean reports to the same journal.
type Calls struct {
	mu      sync.Mutex
	entries []string
}

func (c *Calls) Record(entry string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

// Entries returns a copy of the journal.
func (c *Calls) Entries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.entries...)
}

// WithSuffix returns the entries ending with suffix, e.g. ".OnStop".
func (c *Calls) WithSuffix(suffix string) []string {
	var out []string
	for _, e := range c.Entries() {
		if strings.HasSuffix(e, suffix) {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many times entry was recorded.
func (c *Calls) Count(entry string) int {
	n := 0
	for _, e := range c.Entries() {
		if e == entry {
			n++
		}
	}
	return n
}

// Core interfaces
type Database interface {
	assembly.Starter
	assembly.Stopper
	Connected() bool
	GetContextValue(key string) (any, error)
}

type Cache interface {
	Get(key string) any
}

// Mock implementations
type Logger struct {
	calls *Calls
	Open  bool
}

func (c *Calls) NewLogger() *Logger {
	c.Record("new Logger")
	return &Logger{calls: c}
}

func (l *Logger) OnInitialize(ctx *assembly.LifetimeContext) error {
	l.Open = true
	l.calls.Record("Logger.OnInitialize")
	return nil
}

func (l *Logger) OnStop(ctx *assembly.LifetimeContext) error {
	l.Open = false
	l.calls.Record("Logger.OnStop")
	return nil
}

type MockDB struct {
	calls       *Calls
	Logger      *Logger
	isConnected bool
	ctx         *assembly.LifetimeContext
	RequestID   string
}

func (c *Calls) NewDb(logger *Logger) *MockDB {
	c.Record("new Db")
	return &MockDB{calls: c, Logger: logger}
}

func (m *MockDB) OnStart(ctx *assembly.LifetimeContext) error {
	m.isConnected = true
	m.ctx = ctx

	// Handle nil request_id gracefully
	if reqID := ctx.Value("request_id"); reqID != nil {
		if str, ok := reqID.(string); ok {
			m.RequestID = str
		}
	}
	m.calls.Record("Db.OnStart")
	return nil
}

func (m *MockDB) OnStop(ctx *assembly.LifetimeContext) error {
	m.isConnected = false
	m.ctx = nil
	m.calls.Record("Db.OnStop")
	return nil
}

func (m *MockDB) GetContextValue(key string) (any, error) {
	if m.ctx == nil {
		return nil, fmt.Errorf("context is nil")
	}
	return m.ctx.Value(key), nil
}

func (m *MockDB) Connected() bool {
	return m.isConnected
}

type MockCache struct {
	calls   *Calls
	DB      *MockDB
	Logger  *Logger
	Metrics *Metrics
}

func (c *Calls) NewCache(db *MockDB, logger *Logger) *MockCache {
	c.Record("new Cache")
	return &MockCache{calls: c, DB: db, Logger: logger}
}

// SetMetrics is the member injection point of the cache.
func (m *MockCache) SetMetrics(metrics *Metrics) {
	m.Metrics = metrics
}

func (m *MockCache) Get(key string) any {
	return nil
}

func (m *MockCache) OnInitialize(ctx *assembly.LifetimeContext) error {
	if !m.Logger.Open {
		return fmt.Errorf("logger not open")
	}
	m.calls.Record("Cache.OnInitialize")
	return nil
}

func (m *MockCache) OnStop(ctx *assembly.LifetimeContext) error {
	m.calls.Record("Cache.OnStop")
	return nil
}

type App struct {
	calls *Calls
	Cache Cache
}

func (c *Calls) NewApp(cache Cache) *App {
	c.Record("new App")
	return &App{calls: c, Cache: cache}
}

func (a *App) OnStart(ctx *assembly.LifetimeContext) error {
	a.calls.Record("App.OnStart")
	return nil
}

func (a *App) OnStop(ctx *assembly.LifetimeContext) error {
	a.calls.Record("App.OnStop")
	return nil
}

type Metrics struct {
	Name string
}

// Repo takes an optional *Metrics.
type Repo struct {
	Metrics *Metrics
}

func NewRepo(metrics *Metrics) *Repo {
	return &Repo{Metrics: metrics}
}

// Add FailingDB for testing lifecycle failures
type FailingDB struct {
	MockDB
	FailOn assembly.Phase
}

func (c *Calls) NewFailingDB(logger *Logger) *FailingDB {
	c.Record("new FailingDB")
	return &FailingDB{MockDB: MockDB{calls: c, Logger: logger}}
}

func (f *FailingDB) OnInitialize(ctx *assembly.LifetimeContext) error {
	if f.FailOn == assembly.PhaseInitialize {
		return fmt.Errorf("simulated initialize failure")
	}
	return nil
}

func (f *FailingDB) OnStart(ctx *assembly.LifetimeContext) error {
	if f.FailOn == assembly.PhaseStart {
		return fmt.Errorf("simulated start failure")
	}
	return f.MockDB.OnStart(ctx)
}

// Circular dependency test types: A needs B, B needs C, C needs A.
type ServiceA struct{ B *ServiceB }
type ServiceB struct{ C *ServiceC }
type ServiceC struct{ A *ServiceA }

func NewServiceA(b *ServiceB) *ServiceA { return &ServiceA{B: b} }
func NewServiceB(c *ServiceC) *ServiceB { return &ServiceB{C: c} }
func NewServiceC(a *ServiceA) *ServiceC { return &ServiceC{A: a} }

// Diamond test types: Top needs Left and Right, both need Bottom.
type Bottom struct{ ID int }
type Left struct{ Bottom *Bottom }
type Right struct{ Bottom *Bottom }
type Top struct {
	Left  *Left
	Right *Right
}

func (c *Calls) NewBottom() *Bottom {
	c.Record("new Bottom")
	return &Bottom{ID: len(c.Entries())}
}

func NewLeft(b *Bottom) *Left       { return &Left{Bottom: b} }
func NewRight(b *Bottom) *Right     { return &Right{Bottom: b} }
func NewTop(l *Left, r *Right) *Top { return &Top{Left: l, Right: r} }

// Add these interfaces and implementations
type DeepService3 interface {
	GetValue() string
}

type DeepService2 interface {
	GetService3() DeepService3
}

type DeepService1 interface {
	GetService2() DeepService2
}

type DeepImpl3 struct {
	Value string
}

func (d *DeepImpl3) OnInitialize(ctx *assembly.LifetimeContext) error {
	d.Value = "deep"
	return nil
}

func (d *DeepImpl3) GetValue() string {
	return d.Value
}

type DeepImpl2 struct {
	svc3 DeepService3
}

func NewDeepImpl2(svc3 DeepService3) *DeepImpl2 {
	return &DeepImpl2{svc3: svc3}
}

func (d *DeepImpl2) GetService3() DeepService3 {
	return d.svc3
}

type DeepImpl1 struct {
	svc2 DeepService2
}

func NewDeepImpl1(svc2 DeepService2) *DeepImpl1 {
	return &DeepImpl1{svc2: svc2}
}

func (d *DeepImpl1) GetService2() DeepService2 {
	return d.svc2
}
