// Package agentsdk is the in-process harness a capability agent uses to
// join the mesh: register its skills with the Registry, subscribe to its
// task topics on the Event Bus, and complete the Correlation Tracker's
// promises with its results.
package agentsdk

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/agentmeshio/meshcore/internal/correlation"
	"github.com/agentmeshio/meshcore/internal/eventbus"
	"github.com/agentmeshio/meshcore/internal/observability"
	"github.com/agentmeshio/meshcore/internal/registry"
)

// Agent wires a set of skills into the mesh. A registry has room for only
// one endpoint topic per AgentID, so an Agent with more than one skill
// registers each skill as its own registration, sharing AgentType and
// Metadata but with a distinct AgentID and endpoint topic — each skill is
// effectively its own dispatch target. This keeps capability routing
// unambiguous without inventing a task envelope field the event model
// doesn't otherwise need.
type Agent struct {
	config Config

	bus     *eventbus.Bus
	reg     *registry.Registry
	tracker *correlation.Tracker
	logger  *slog.Logger
	tracer  *observability.TraceManager

	mu            sync.Mutex
	skills        map[string]*Skill
	running       bool
	subscriptions []string
	registeredIDs []string
}

// New constructs an Agent. logger and tracer may be nil.
func New(cfg Config, bus *eventbus.Bus, reg *registry.Registry, tracker *correlation.Tracker, logger *slog.Logger, tracer *observability.TraceManager) (*Agent, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = observability.NewTraceManager(cfg.AgentID)
	}
	return &Agent{
		config:  cfg,
		bus:     bus,
		reg:     reg,
		tracker: tracker,
		logger:  logger,
		tracer:  tracer,
		skills:  make(map[string]*Skill),
	}, nil
}

// AddSkill registers a skill this agent can perform. Skills must be added
// before Run is called.
func (a *Agent) AddSkill(name, description string, handler TaskHandler) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.skills[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSkill, name)
	}
	a.skills[name] = &Skill{Name: name, Description: description, Handler: handler}
	return nil
}

// MustAddSkill is like AddSkill but panics on error, for use during
// process-startup wiring where a duplicate skill name is a programmer error.
func (a *Agent) MustAddSkill(name, description string, handler TaskHandler) {
	if err := a.AddSkill(name, description, handler); err != nil {
		panic(err)
	}
}

// skillAgentID returns the registry AgentID a given skill registers under.
// A single-skill agent keeps its configured AgentID unchanged so the
// common case reads naturally in logs and the planning prompt's agent
// catalogue.
func (a *Agent) skillAgentID(skillName string) string {
	if len(a.skills) == 1 {
		return a.config.AgentID
	}
	return a.config.AgentID + "#" + skillName
}

func (a *Agent) topicFor(registryAgentID string) string {
	return "agent." + registryAgentID
}

// Run registers every skill, subscribes to its task topic, and blocks
// until ctx is cancelled or a SIGINT/SIGTERM arrives, then deregisters
// and returns. Skills must be added before calling Run.
func (a *Agent) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrAgentAlreadyRunning
	}
	if len(a.skills) == 0 {
		a.mu.Unlock()
		return ErrNoSkills
	}
	a.running = true
	a.mu.Unlock()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.initialize(); err != nil {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
		return err
	}

	heartbeat := time.NewTicker(a.config.HeartbeatInterval)
	defer heartbeat.Stop()

	a.logger.Info("agentsdk: agent running", "agent_id", a.config.AgentID, "skills", len(a.skills))
	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return nil
		case <-heartbeat.C:
			a.sendHeartbeats()
		}
	}
}

// initialize registers every skill with the registry and subscribes its
// handler on the corresponding task topic.
func (a *Agent) initialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	caps := make(map[string]struct{}, len(a.skills))
	tags := append([]string{}, a.config.Tags...)

	for name, skill := range a.skills {
		agentID := a.skillAgentID(name)
		topic := a.topicFor(agentID)

		handle, err := a.bus.Subscribe(agentID, topic, a.wrapHandler(agentID, name, skill.Handler))
		if err != nil {
			return fmt.Errorf("agentsdk: subscribe %s: %w", topic, err)
		}
		a.subscriptions = append(a.subscriptions, handle)

		registration := registry.AgentRegistration{
			AgentID:       agentID,
			AgentType:     a.config.AgentType,
			Capabilities:  map[string]struct{}{name: {}},
			EndpointTopic: topic,
			Metadata: registry.Metadata{
				Name:        a.config.Name,
				Description: describeSkill(a.config.Description, skill.Description),
				Tags:        tags,
			},
		}
		if err := a.reg.Register(registration); err != nil {
			return fmt.Errorf("agentsdk: register %s: %w", agentID, err)
		}
		a.registeredIDs = append(a.registeredIDs, agentID)
		caps[name] = struct{}{}
	}

	a.logger.Info("agentsdk: registered skills", "agent_id", a.config.AgentID, "capabilities", keys(caps))
	return nil
}

func describeSkill(agentDesc, skillDesc string) string {
	if agentDesc == "" {
		return skillDesc
	}
	if skillDesc == "" {
		return agentDesc
	}
	return agentDesc + ": " + skillDesc
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// wrapHandler adapts a TaskHandler into an eventbus.Handler: it traces the
// invocation, runs the skill, and completes the correlation promise the
// dispatcher is waiting on.
func (a *Agent) wrapHandler(agentID, skillName string, handler TaskHandler) eventbus.Handler {
	return func(e eventbus.Event) error {
		ctx, span := a.tracer.StartConsumeSpan(context.Background(), e.Sender, skillName)
		span.SetAttributes(
			attribute.String("agent_id", agentID),
			attribute.String("skill", skillName),
			attribute.String("correlation_id", e.CorrelationID),
		)
		defer span.End()
		a.tracer.AddComponentAttribute(span, agentID)

		params, _ := e.Payload.(map[string]any)
		a.tracer.AddTaskAttributes(span, e.CorrelationID, skillName, params)

		result, err := handler(ctx, params)
		if err != nil {
			a.tracer.RecordError(span, err)
			a.tracer.AddTaskResult(span, "failure", nil, err.Error())
			a.logger.Warn("agentsdk: skill handler failed", "agent_id", agentID, "skill", skillName, "error", err)
			if e.CorrelationID != "" {
				if failErr := a.tracker.Fail(e.CorrelationID, err); failErr != nil {
					a.logger.Warn("agentsdk: failed to fail correlation", "agent_id", agentID, "correlation_id", e.CorrelationID, "error", failErr)
				}
			}
			return err
		}
		a.tracer.SetSpanSuccess(span)
		resultAttrs, _ := result.(map[string]any)
		a.tracer.AddTaskResult(span, "success", resultAttrs, "")

		if e.CorrelationID == "" {
			return nil
		}
		if result == nil {
			// An acknowledgement with nothing to report: complete the
			// promise directly rather than recording an empty payload.
			if err := a.tracker.Complete(e.CorrelationID); err != nil {
				a.logger.Warn("agentsdk: failed to complete correlation", "agent_id", agentID, "correlation_id", e.CorrelationID, "error", err)
			}
			return nil
		}
		if err := a.tracker.RecordResponse(e.CorrelationID, correlation.Response{
			SenderAgentID: agentID,
			Payload:       result,
			ReceivedAt:    time.Now(),
		}); err != nil {
			a.logger.Warn("agentsdk: failed to record response", "agent_id", agentID, "correlation_id", e.CorrelationID, "error", err)
		}
		return nil
	}
}

func (a *Agent) sendHeartbeats() {
	a.mu.Lock()
	ids := append([]string{}, a.registeredIDs...)
	a.mu.Unlock()
	for _, id := range ids {
		if err := a.reg.Heartbeat(id); err != nil {
			a.logger.Warn("agentsdk: heartbeat failed", "agent_id", id, "error", err)
		}
	}
}

// shutdown unsubscribes and deregisters every skill this agent owns.
func (a *Agent) shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, handle := range a.subscriptions {
		if err := a.bus.Unsubscribe(handle); err != nil {
			a.logger.Warn("agentsdk: unsubscribe failed", "handle", handle, "error", err)
		}
	}
	for _, id := range a.registeredIDs {
		if err := a.reg.Deregister(id); err != nil {
			a.logger.Warn("agentsdk: deregister failed", "agent_id", id, "error", err)
		}
	}
	a.subscriptions = nil
	a.registeredIDs = nil
	a.running = false
	a.logger.Info("agentsdk: agent stopped", "agent_id", a.config.AgentID)
}

// GetLogger returns the agent's logger, for handlers that want to log with
// the same structured fields the SDK uses.
func (a *Agent) GetLogger() *slog.Logger { return a.logger }

// GetConfig returns the agent's configuration.
func (a *Agent) GetConfig() Config { return a.config }
