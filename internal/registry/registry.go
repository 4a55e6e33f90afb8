// Package registry implements a capability-indexed directory of agents
// with heartbeat-based liveness, stale-entry eviction, and deterministic
// best-agent selection.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/agentmeshio/meshcore/internal/eventbus"
	"github.com/agentmeshio/meshcore/internal/observability"
)

// Status is an agent's current lifecycle state.
type Status int

const (
	StatusActive Status = iota
	StatusBusy
	StatusInactive
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusBusy:
		return "BUSY"
	case StatusInactive:
		return "INACTIVE"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Metadata carries the descriptive richness the planning prompt's
// capability catalogue needs: a human name, description and tags per
// agent.
type Metadata struct {
	Name        string
	Description string
	Tags        []string
}

// AgentRegistration is the registry's record of one agent.
type AgentRegistration struct {
	AgentID       string
	AgentType     string
	Capabilities  map[string]struct{}
	EndpointTopic string
	Metadata      Metadata
	RegisteredAt  time.Time
	LastHeartbeat time.Time
	Status        Status
}

// clone deep-copies a registration so callers cannot mutate registry state
// through a returned value.
func (r AgentRegistration) clone() AgentRegistration {
	caps := make(map[string]struct{}, len(r.Capabilities))
	for c := range r.Capabilities {
		caps[c] = struct{}{}
	}
	tags := make([]string, len(r.Metadata.Tags))
	copy(tags, r.Metadata.Tags)
	r.Capabilities = caps
	r.Metadata.Tags = tags
	return r
}

var (
	// ErrNotFound is returned when an agentID has no registration.
	ErrNotFound = errors.New("registry: agent not found")
	// ErrAlreadyRegistered is returned by Register for a known agentID.
	ErrAlreadyRegistered = errors.New("registry: agent already registered")
)

// BreakerLookup reports whether an agent's circuit breaker is currently
// OPEN, so Registry.Select can exclude it without importing resilience
// directly (resilience depends on registry, not the reverse).
type BreakerLookup func(agentID string) (open bool)

// Registry is the concrete Agent Registry. A single RWMutex guards all
// three indices together: index consistency (findByCapability sees the
// full registration or none of it) requires every mutation to update ID,
// capability and type indices atomically, and at registry scale the
// simplicity of one writer lock outweighs the complexity of sharding three
// interdependent maps.
type Registry struct {
	mu          sync.RWMutex
	byID        map[string]*AgentRegistration
	byCapability map[string]map[string]struct{} // capability -> set(agentID)
	byType      map[string]map[string]struct{} // agentType -> set(agentID)

	bus     *eventbus.Bus
	logger  *slog.Logger
	metrics *observability.MetricsManager

	staleTimeout time.Duration
	sweepEvery   time.Duration
	stopSweep    chan struct{}
	sweepDone    chan struct{}
}

// New constructs a Registry. bus is used to publish registry.agent.evicted
// on stale eviction; it may be nil in tests that don't exercise eviction.
func New(bus *eventbus.Bus, logger *slog.Logger, metrics *observability.MetricsManager, staleTimeout, sweepEvery time.Duration) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if staleTimeout <= 0 {
		staleTimeout = 5 * time.Minute
	}
	if sweepEvery <= 0 {
		sweepEvery = 30 * time.Second
	}
	return &Registry{
		byID:         make(map[string]*AgentRegistration),
		byCapability: make(map[string]map[string]struct{}),
		byType:       make(map[string]map[string]struct{}),
		bus:          bus,
		logger:       logger,
		metrics:      metrics,
		staleTimeout: staleTimeout,
		sweepEvery:   sweepEvery,
	}
}

// Register adds a new active agent. Capabilities and type index entries
// are added atomically with the by-ID entry.
func (r *Registry) Register(reg AgentRegistration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[reg.AgentID]; exists {
		return ErrAlreadyRegistered
	}

	reg = reg.clone()
	reg.RegisteredAt = time.Now()
	reg.LastHeartbeat = reg.RegisteredAt
	reg.Status = StatusActive

	r.byID[reg.AgentID] = &reg
	r.indexCapabilities(&reg)
	r.indexType(&reg)

	if r.metrics != nil {
		r.metrics.SetRegistrySize(context.Background(), 1)
	}
	r.logger.Info("registry: agent registered", "agent_id", reg.AgentID, "agent_type", reg.AgentType, "capabilities", len(reg.Capabilities))
	return nil
}

func (r *Registry) indexCapabilities(reg *AgentRegistration) {
	if reg.Status != StatusActive {
		return
	}
	for cap := range reg.Capabilities {
		set, ok := r.byCapability[cap]
		if !ok {
			set = make(map[string]struct{})
			r.byCapability[cap] = set
		}
		set[reg.AgentID] = struct{}{}
	}
}

func (r *Registry) unindexCapabilities(reg *AgentRegistration) {
	for cap := range reg.Capabilities {
		if set, ok := r.byCapability[cap]; ok {
			delete(set, reg.AgentID)
			if len(set) == 0 {
				delete(r.byCapability, cap)
			}
		}
	}
}

func (r *Registry) indexType(reg *AgentRegistration) {
	set, ok := r.byType[reg.AgentType]
	if !ok {
		set = make(map[string]struct{})
		r.byType[reg.AgentType] = set
	}
	set[reg.AgentID] = struct{}{}
}

func (r *Registry) unindexType(reg *AgentRegistration) {
	if set, ok := r.byType[reg.AgentType]; ok {
		delete(set, reg.AgentID)
		if len(set) == 0 {
			delete(r.byType, reg.AgentType)
		}
	}
}

// Deregister removes an agent and all of its index entries atomically.
func (r *Registry) Deregister(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.byID[agentID]
	if !ok {
		return ErrNotFound
	}
	r.unindexCapabilities(reg)
	r.unindexType(reg)
	delete(r.byID, agentID)

	if r.metrics != nil {
		r.metrics.SetRegistrySize(context.Background(), -1)
	}
	return nil
}

// Heartbeat refreshes an agent's liveness timestamp.
func (r *Registry) Heartbeat(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.byID[agentID]
	if !ok {
		return ErrNotFound
	}
	reg.LastHeartbeat = time.Now()
	return nil
}

// UpdateStatus transitions an agent's status, maintaining the capability
// index invariant (capabilityIndex[c] contains agentId iff status=ACTIVE).
func (r *Registry) UpdateStatus(agentID string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.byID[agentID]
	if !ok {
		return ErrNotFound
	}
	wasActive := reg.Status == StatusActive
	reg.Status = status
	nowActive := status == StatusActive

	switch {
	case wasActive && !nowActive:
		r.unindexCapabilities(reg)
	case !wasActive && nowActive:
		r.indexCapabilities(reg)
	}
	return nil
}

// FindByCapability returns every active registration offering cap.
func (r *Registry) FindByCapability(cap string) []AgentRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byCapability[cap]
	out := make([]AgentRegistration, 0, len(set))
	for id := range set {
		out = append(out, r.byID[id].clone())
	}
	return out
}

// FindByType returns every registration of the given agentType.
func (r *Registry) FindByType(agentType string) []AgentRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byType[agentType]
	out := make([]AgentRegistration, 0, len(set))
	for id := range set {
		out = append(out, r.byID[id].clone())
	}
	return out
}

// GetAll returns every registration currently known to the registry.
func (r *Registry) GetAll() []AgentRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AgentRegistration, 0, len(r.byID))
	for _, reg := range r.byID {
		out = append(out, reg.clone())
	}
	return out
}

// MatchResult is the outcome of matching a capability set against the
// registry.
type MatchResult struct {
	Matches map[string]AgentRegistration // capability -> selected agent
	Missing map[string]struct{}          // capabilities with no active agent
}

// MatchPlan selects, for each required capability, the best candidate agent
// per the selection rule in Select. Capabilities with no viable candidate
// are reported in Missing.
func (r *Registry) MatchPlan(requiredCaps []string, breakerOpen BreakerLookup) MatchResult {
	result := MatchResult{
		Matches: make(map[string]AgentRegistration),
		Missing: make(map[string]struct{}),
	}
	for _, cap := range requiredCaps {
		reg, ok := r.Select(cap, breakerOpen)
		if !ok {
			result.Missing[cap] = struct{}{}
			continue
		}
		result.Matches[cap] = reg
	}
	return result
}

// Select picks the single best agent for cap: earliest registration time
// among ACTIVE agents whose circuit breaker is not OPEN, ties broken by
// lexicographic agent ID. Every agent ID listed in excludeAgentID is removed
// from the candidates first — used by the resilience layer's alternate
// routing to skip the agents it has already tried.
func (r *Registry) Select(cap string, breakerOpen BreakerLookup, excludeAgentID ...string) (AgentRegistration, bool) {
	candidates := r.FindByCapability(cap)
	excluded := make(map[string]struct{}, len(excludeAgentID))
	for _, id := range excludeAgentID {
		excluded[id] = struct{}{}
	}

	var viable []AgentRegistration
	for _, c := range candidates {
		if _, skip := excluded[c.AgentID]; skip {
			continue
		}
		if c.Status != StatusActive {
			continue
		}
		if breakerOpen != nil && breakerOpen(c.AgentID) {
			continue
		}
		viable = append(viable, c)
	}
	if len(viable) == 0 {
		return AgentRegistration{}, false
	}

	sort.Slice(viable, func(i, j int) bool {
		if !viable[i].RegisteredAt.Equal(viable[j].RegisteredAt) {
			return viable[i].RegisteredAt.Before(viable[j].RegisteredAt)
		}
		return viable[i].AgentID < viable[j].AgentID
	})
	return viable[0], true
}

// StartSweep launches the periodic stale-eviction loop. StopSweep must be called
// to release the background goroutine.
func (r *Registry) StartSweep() {
	r.stopSweep = make(chan struct{})
	r.sweepDone = make(chan struct{})
	go r.sweepLoop()
}

func (r *Registry) sweepLoop() {
	defer close(r.sweepDone)
	ticker := time.NewTicker(r.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.evictStale()
		case <-r.stopSweep:
			return
		}
	}
}

func (r *Registry) evictStale() {
	cutoff := time.Now().Add(-r.staleTimeout)

	r.mu.Lock()
	var evicted []AgentRegistration
	for id, reg := range r.byID {
		if reg.LastHeartbeat.Before(cutoff) {
			r.unindexCapabilities(reg)
			r.unindexType(reg)
			delete(r.byID, id)
			evicted = append(evicted, reg.clone())
		}
	}
	r.mu.Unlock()

	ctx := context.Background()
	for _, reg := range evicted {
		r.logger.Warn("registry: evicting stale agent", "agent_id", reg.AgentID, "last_heartbeat", reg.LastHeartbeat)
		if r.metrics != nil {
			r.metrics.IncrementRegistryEvictions(ctx)
			r.metrics.SetRegistrySize(ctx, -1)
		}
		if r.bus != nil {
			_ = r.bus.Publish(eventbus.NewEvent("registry.agent.evicted", reg, "registry", "", eventbus.BestEffort))
		}
	}
}

// StopSweep halts the periodic eviction goroutine, if running.
func (r *Registry) StopSweep() {
	if r.stopSweep == nil {
		return
	}
	close(r.stopSweep)
	<-r.sweepDone
}
