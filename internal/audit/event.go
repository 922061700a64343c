package audit

import "time"

// EventType classifies audit events.
type EventType string

const (
	TypeContractCall       EventType = "contract_call"
	TypeTokenTransfer      EventType = "token_transfer"
	TypePermissionChange   EventType = "permission_change"
	TypeRoleChange         EventType = "role_change"
	TypeAuthAttempt        EventType = "auth_attempt"
	TypeAccessViolation    EventType = "access_violation"
	TypeSuspiciousActivity EventType = "suspicious_activity"
	TypeConfigChange       EventType = "config_change"
	TypeStateChange        EventType = "state_change"
	TypeError              EventType = "error"
)

// Severity orders audit events by impact.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event is an immutable audit record. Events are created only by the
// Auditor and never mutated after append.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Severity  Severity          `json:"severity"`
	Timestamp time.Time         `json:"timestamp"`
	Actor     string            `json:"actor"`
	Target    string            `json:"target,omitempty"`
	Details   map[string]any    `json:"details"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Filter narrows event reads. Zero-value fields match everything.
type Filter struct {
	Type     EventType
	Severity Severity
	Actor    string
	Since    time.Time
	Until    time.Time
}

func (f Filter) matches(ev Event) bool {
	if f.Type != "" && ev.Type != f.Type {
		return false
	}
	if f.Severity != "" && ev.Severity != f.Severity {
		return false
	}
	if f.Actor != "" && ev.Actor != f.Actor {
		return false
	}
	if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && ev.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// Metrics is the derived read view over the retained log.
type Metrics struct {
	TotalEvents  uint64            `json:"total_events"`
	RecentEvents int               `json:"recent_events"`
	BySeverity   map[Severity]int  `json:"by_severity"`
	ByType       map[EventType]int `json:"by_type"`
}
