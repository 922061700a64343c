package collab

import (
	"context"
	"fmt"
	"sync"
	"time"

	"neplus.org/internal/access"
	"neplus.org/internal/audit"
	"neplus.org/internal/obs"
)

// Protocol is the registry of collaboration sessions. It consults the
// access authority before creating sessions and audits every mutating
// call through the shared auditor.
type Protocol struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	access  *access.Control
	auditor *audit.Auditor
	now     func() time.Time
}

// ProtocolOption configures a Protocol.
type ProtocolOption func(*Protocol)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) ProtocolOption {
	return func(p *Protocol) { p.now = now }
}

// NewProtocol creates an empty session registry.
func NewProtocol(ac *access.Control, auditor *audit.Auditor, opts ...ProtocolOption) *Protocol {
	p := &Protocol{
		sessions: make(map[string]*Session),
		access:   ac,
		auditor:  auditor,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// InitializeCollaboration creates a session with the initiator pre-seeded
// as a participant. The initiator needs the create:project permission.
// The audit record is written before the session becomes visible so that
// a failed append leaves no observable state.
func (p *Protocol) InitializeCollaboration(ctx context.Context, id string, typ Type, rules Rules, initiator string) (*Session, error) {
	if !p.access.HasPermission(initiator, access.PermCreateProject) {
		_ = p.auditor.AccessViolation(ctx, initiator, "collaboration", map[string]any{
			"instruction": "initialize",
			"session":     id,
		})
		return nil, fmt.Errorf("%w: %s may not initialize collaborations", ErrUnauthorized, initiator)
	}

	// The lock spans the audit append so the session either becomes
	// visible together with its audit record or not at all. No lock
	// ordering issue: the auditor never calls back into the protocol.
	p.mu.Lock()
	if _, exists := p.sessions[id]; exists {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: session %s", ErrExists, id)
	}

	session := newSession(id, typ, rules, initiator, p.auditor, p.now)

	err := p.auditor.ContractCall(ctx, "collaboration", "initialize",
		[]string{initiator}, map[string]any{"session": id, "type": string(typ)})
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.sessions[id] = session
	p.mu.Unlock()

	obs.ObserveCollabOp("initialize")
	return session, nil
}

// JoinCollaboration adds a participant to an existing session.
func (p *Protocol) JoinCollaboration(ctx context.Context, id, participant, role string) error {
	session, ok := p.Get(id)
	if !ok {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if err := session.AddParticipant(ctx, participant, role); err != nil {
		return err
	}
	obs.ObserveCollabOp("join")
	return nil
}

// Get returns a session by id.
func (p *Protocol) Get(id string) (*Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	session, ok := p.sessions[id]
	return session, ok
}

// ActiveCollaborations returns every session currently in the active
// state.
func (p *Protocol) ActiveCollaborations() []*Session {
	p.mu.RLock()
	snapshot := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		snapshot = append(snapshot, s)
	}
	p.mu.RUnlock()

	var out []*Session
	for _, s := range snapshot {
		if s.Status() == StatusActive {
			out = append(out, s)
		}
	}
	return out
}

// SessionMetrics returns metrics for one session.
func (p *Protocol) SessionMetrics(id string) (Metrics, error) {
	session, ok := p.Get(id)
	if !ok {
		return Metrics{}, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return session.GetMetrics(), nil
}
