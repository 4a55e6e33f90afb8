package agentsdk

import (
	"context"
	"errors"
)

// TaskHandler processes one task dispatched to a skill. params is the
// TaskSpec.Params the orchestrator built for this task; the returned value
// becomes the correlation Response payload seen by the dispatcher.
type TaskHandler func(ctx context.Context, params map[string]any) (any, error)

// Skill is one capability an Agent offers.
type Skill struct {
	Name        string
	Description string
	Handler     TaskHandler
}

// Common errors.
var (
	ErrMissingAgentID      = errors.New("agentsdk: agent ID is required")
	ErrMissingName         = errors.New("agentsdk: agent name is required")
	ErrNoSkills            = errors.New("agentsdk: at least one skill must be registered")
	ErrDuplicateSkill      = errors.New("agentsdk: skill with this name already registered")
	ErrAgentAlreadyRunning = errors.New("agentsdk: agent is already running")
)
