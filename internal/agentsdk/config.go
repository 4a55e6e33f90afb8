package agentsdk

import "time"

// Config holds an Agent's identity and registration metadata.
type Config struct {
	// AgentID is the unique identifier for this agent process.
	AgentID string

	// AgentType groups related agents in the registry's type index
	// (e.g. "weather-agent", "fx-agent").
	AgentType string

	// Name and Description populate the registry's Metadata, which the
	// orchestrator's planning prompt uses to describe available agents.
	Name        string
	Description string

	// Tags are free-form capability hints carried in Metadata.
	Tags []string

	// HeartbeatInterval controls how often the agent refreshes its
	// liveness timestamp with the registry (optional, defaults to 30s).
	HeartbeatInterval time.Duration
}

// withDefaults returns a copy of c with optional fields filled in.
func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.AgentType == "" {
		c.AgentType = "capability-agent"
	}
	return c
}

// validate checks that the required fields are set.
func (c Config) validate() error {
	if c.AgentID == "" {
		return ErrMissingAgentID
	}
	if c.Name == "" {
		return ErrMissingName
	}
	return nil
}
