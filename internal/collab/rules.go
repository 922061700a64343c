package collab

import "time"

// Type classifies what a collaboration session is scoped to.
type Type string

const (
	TypeProject  Type = "project"
	TypeResource Type = "resource"
	TypeTask     Type = "task"
	TypeReview   Type = "review"
)

// Status is the session lifecycle state. Sessions move pending -> active
// -> {completed, cancelled} and never leave a terminal state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Rules constrain a session. Zero values disable the corresponding check.
type Rules struct {
	MinParticipants   int           `json:"min_participants"`
	MaxParticipants   int           `json:"max_participants"`
	RequiredRoles     []string      `json:"required_roles,omitempty"`
	VotingThreshold   float64       `json:"voting_threshold"`
	ReviewRequirement bool          `json:"review_requirement"`
	TimeLimit         time.Duration `json:"time_limit"`
}

// DefaultProjectRules returns the standard ruleset for project
// collaborations.
func DefaultProjectRules() Rules {
	return Rules{
		MinParticipants:   2,
		MaxParticipants:   10,
		RequiredRoles:     []string{"developer", "designer", "manager"},
		VotingThreshold:   0.6,
		ReviewRequirement: true,
		TimeLimit:         30 * 24 * time.Hour,
	}
}

// DefaultResourceExchangeRules returns the two-party ruleset for resource
// exchanges.
func DefaultResourceExchangeRules() Rules {
	return Rules{
		MinParticipants:   2,
		MaxParticipants:   2,
		VotingThreshold:   1.0,
		ReviewRequirement: true,
		TimeLimit:         7 * 24 * time.Hour,
	}
}
