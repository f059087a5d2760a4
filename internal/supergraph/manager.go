// Package supergraph owns the currently-published Supergraph and keeps it
// fresh by polling the schema registry.
package supergraph

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gratheon/graphql-gateway/federation/executor"
	"github.com/gratheon/graphql-gateway/federation/graph"
	"github.com/gratheon/graphql-gateway/federation/planner"
	"github.com/gratheon/graphql-gateway/internal/composer"
	"github.com/gratheon/graphql-gateway/internal/dispatcher"
	"github.com/gratheon/graphql-gateway/internal/registryclient"
)

// fallbackSDL is served when the registry returns zero descriptors and no
// previous Supergraph has ever been published.
const fallbackSDL = `type Query {
  _gatewayStatus: String
}`

const fallbackSubgraphName = "gateway-fallback"

// State is the Manager's lifecycle state.
type State int32

const (
	StateInitialized State = iota
	StatePolling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Engine bundles the read-only components needed to plan and execute a
// request against one Supergraph generation.
type Engine struct {
	Planner     *planner.PlannerV2
	Executor    *executor.ExecutorV2
	SuperGraph  *graph.SuperGraphV2
	Dispatchers map[string]*dispatcher.Dispatcher
}

// Supergraph is one immutable, fully-built generation. A new Supergraph
// fully replaces the previous one; there is no partial update.
type Supergraph struct {
	SDL        string
	Engine     *Engine
	Generation uint64
}

// Manager polls the registry, composes subgraph SDLs, and atomically
// publishes new Supergraph generations.
type Manager struct {
	registry        *registryclient.Client
	pollInterval    time.Duration
	routerSignature string
	subgraphClient  *http.Client
	logger          *slog.Logger

	current atomic.Pointer[Supergraph]
	state   atomic.Int32

	// sdlCache, lastValid and generation are owned exclusively by the
	// build path (the synchronous first build, then the single poll
	// goroutine); no external reader ever touches them.
	sdlCache   map[string]string
	lastValid  *Supergraph
	generation uint64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a Manager. pollIntervalMs == 0 disables background polling.
func New(registry *registryclient.Client, pollIntervalMs int, routerSignature string, subgraphClient *http.Client) *Manager {
	if subgraphClient == nil {
		subgraphClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Manager{
		registry:        registry,
		pollInterval:    time.Duration(pollIntervalMs) * time.Millisecond,
		routerSignature: routerSignature,
		subgraphClient:  subgraphClient,
		logger:          slog.Default().With("component", "supergraph"),
		sdlCache:        make(map[string]string),
		stopCh:          make(chan struct{}),
	}
}

// State returns the Manager's current lifecycle state.
func (m *Manager) State() State { return State(m.state.Load()) }

// Current returns the currently-published Supergraph, or nil if
// Initialize has not yet completed its first build.
func (m *Manager) Current() *Supergraph { return m.current.Load() }

// Initialize performs the first build synchronously, publishes it, and —
// if a poll interval is configured — starts the background poll loop.
// publish is invoked with the new SDL text whenever a build produces a
// changed, successfully-composed result (edge-triggered).
func (m *Manager) Initialize(ctx context.Context, publish func(sdl string)) (*Supergraph, error) {
	sg, _, err := m.buildAndPublish(ctx, publish)
	if err != nil {
		return nil, err
	}

	m.state.Store(int32(StateInitialized))

	if m.pollInterval > 0 {
		m.state.Store(int32(StatePolling))
		go m.pollLoop(ctx, publish)
	}

	return sg, nil
}

// Cancel stops the poll loop. Idempotent; after it returns no further
// publish calls occur.
func (m *Manager) Cancel() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.state.Store(int32(StateStopped))
	})
}

func (m *Manager) pollLoop(ctx context.Context, publish func(sdl string)) {
	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(m.pollInterval):
		}

		if m.State() == StateStopped {
			return
		}

		if _, _, err := m.buildAndPublish(ctx, publish); err != nil {
			m.logger.Error("supergraph poll cycle failed", "error", err)
		}
	}
}

// buildAndPublish runs one build cycle, swaps the current pointer if the
// build produced something new, and invokes publish on an edge-triggered
// SDL-text change.
func (m *Manager) buildAndPublish(ctx context.Context, publish func(sdl string)) (*Supergraph, bool, error) {
	sdl, schemaChanged, err := m.buildSupergraph(ctx)
	if err != nil {
		return nil, false, err
	}

	previous := m.current.Load()
	textChanged := previous == nil || previous.SDL != sdl.SDL

	m.current.Store(sdl)

	if schemaChanged && textChanged && publish != nil {
		publish(sdl.SDL)
	}

	return sdl, textChanged, nil
}

// buildSupergraph fetches the registry, rebuilds the cache, composes the
// parseable subgraphs, and falls back to the last valid supergraph on any
// failure along the way.
func (m *Manager) buildSupergraph(ctx context.Context) (*Supergraph, bool, error) {
	descriptors, sawError := m.registry.Fetch(ctx)

	schemaChanged := false
	if !sawError {
		schemaChanged = m.updateCache(descriptors)
	}

	if len(descriptors) == 0 {
		if m.lastValid != nil {
			return m.lastValid, false, nil
		}
		return m.buildFallback(), true, nil
	}

	parseable := make([]registryclient.Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if d.TypeDefsAST != nil {
			parseable = append(parseable, d)
		}
	}

	if len(parseable) == 0 {
		if m.lastValid != nil {
			return m.lastValid, false, nil
		}
		return nil, false, fmt.Errorf("no parseable subgraph descriptors and no previous supergraph to fall back to")
	}

	result, err := composer.Compose(parseable)
	if err != nil {
		if m.lastValid != nil {
			m.logger.Warn("composition failed, serving last valid supergraph", "error", err)
			return m.lastValid, false, nil
		}
		return nil, false, fmt.Errorf("composition failed with no prior supergraph: %w", err)
	}

	m.generation++
	engine, err := buildEngine(parseable, result, m.routerSignature, m.subgraphClient)
	if err != nil {
		if m.lastValid != nil {
			m.logger.Warn("engine build failed, serving last valid supergraph", "error", err)
			return m.lastValid, false, nil
		}
		return nil, false, fmt.Errorf("engine build failed with no prior supergraph: %w", err)
	}

	sg := &Supergraph{SDL: result.SDL, Engine: engine, Generation: m.generation}
	m.lastValid = sg
	return sg, schemaChanged, nil
}

// updateCache compares each descriptor's typeDefsText against the cache,
// updates the cache, and reports whether anything changed.
func (m *Manager) updateCache(descriptors []registryclient.Descriptor) bool {
	changed := false

	seen := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		seen[d.Name] = true
		if cached, ok := m.sdlCache[d.Name]; !ok || cached != d.TypeDefsText {
			changed = true
			m.sdlCache[d.Name] = d.TypeDefsText
		}
	}

	for name := range m.sdlCache {
		if !seen[name] {
			delete(m.sdlCache, name)
			changed = true
		}
	}

	return changed
}

func (m *Manager) buildFallback() *Supergraph {
	descriptor := registryclient.Descriptor{
		Name:         fallbackSubgraphName,
		URL:          "",
		TypeDefsText: fallbackSDL,
	}

	result, err := composer.Compose([]registryclient.Descriptor{descriptor})
	if err != nil {
		// The fallback SDL is a compile-time constant; composition
		// failure here indicates a programming error, not a runtime
		// condition. Serve an engine-less Supergraph rather than panic.
		m.generation++
		return &Supergraph{SDL: fallbackSDL, Generation: m.generation}
	}

	m.generation++
	engine, err := buildEngine([]registryclient.Descriptor{descriptor}, result, m.routerSignature, m.subgraphClient)
	if err != nil {
		return &Supergraph{SDL: result.SDL, Generation: m.generation}
	}

	sg := &Supergraph{SDL: result.SDL, Engine: engine, Generation: m.generation}
	m.lastValid = sg
	return sg
}

// buildEngine wraps a composition Result in a planner + executor, with one
// dispatcher per subgraph endpoint bound to this generation: endpoint URLs
// never change out from under an in-flight request.
func buildEngine(descriptors []registryclient.Descriptor, result *composer.Result, routerSignature string, httpClient *http.Client) (*Engine, error) {
	dispatchers := make(map[string]*dispatcher.Dispatcher, len(descriptors))
	for _, d := range descriptors {
		if d.URL == "" {
			continue
		}
		dispatchers[d.Name] = dispatcher.New(d.Name, d.URL+"/graphql", routerSignature, httpClient)
	}

	return &Engine{
		Planner:     planner.NewPlannerV2(result.SuperGraph),
		Executor:    executor.NewExecutorV2(dispatchers, result.SuperGraph),
		SuperGraph:  result.SuperGraph,
		Dispatchers: dispatchers,
	}, nil
}
