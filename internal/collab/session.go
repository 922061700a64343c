package collab

import (
	"context"
	"fmt"
	"sync"
	"time"

	"neplus.org/internal/audit"
	"neplus.org/internal/ids"
)

const (
	defaultRole   = "member"
	initiatorRole = "initiator"
)

// Task is a unit of work created inside a session.
type Task struct {
	ID         string              `json:"id"`
	Creator    string              `json:"creator"`
	Status     string              `json:"status"`
	Created    time.Time           `json:"created"`
	Data       map[string]any      `json:"data,omitempty"`
	ReviewedBy map[string]struct{} `json:"-"`
}

// Metrics is the derived read view over one session.
type Metrics struct {
	ParticipantCount int           `json:"participant_count"`
	CompletedTasks   int           `json:"completed_tasks"`
	ActiveTime       time.Duration `json:"active_time"`
	LastActivity     time.Time     `json:"last_activity"`
	Score            float64       `json:"score"`
}

// Session is one collaboration protocol run. It owns its participants,
// tasks and votes and serializes all mutation under its own lock.
type Session struct {
	id  string
	typ Type

	mu           sync.Mutex
	status       Status
	rules        Rules
	initiator    string
	participants map[string]string
	tasks        map[string]*Task
	votes        map[string]map[string]struct{}
	startTime    time.Time
	lastActivity time.Time

	auditor *audit.Auditor
	now     func() time.Time
}

func newSession(id string, typ Type, rules Rules, initiator string, auditor *audit.Auditor, now func() time.Time) *Session {
	start := now()
	return &Session{
		id:           id,
		typ:          typ,
		status:       StatusPending,
		rules:        rules,
		initiator:    initiator,
		participants: map[string]string{initiator: initiatorRole},
		tasks:        make(map[string]*Task),
		votes:        make(map[string]map[string]struct{}),
		startTime:    start,
		lastActivity: start,
		auditor:      auditor,
		now:          now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Type returns what the session is scoped to.
func (s *Session) Type() Type { return s.typ }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Rules returns a copy of the session ruleset.
func (s *Session) Rules() Rules {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rules
	r.RequiredRoles = append([]string(nil), s.rules.RequiredRoles...)
	return r
}

// Participants returns a copy of the participant-to-role map.
func (s *Session) Participants() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.participants))
	for p, r := range s.participants {
		out[p] = r
	}
	return out
}

// AddParticipant inserts or re-roles a participant. The capacity check is
// atomic with the insert. Joining an explicitly supplied role must be one
// of the required roles; the default role bypasses the check, matching
// sessions where participants join before picking a specialty.
// The first participant beyond the initiator activates a pending session.
func (s *Session) AddParticipant(ctx context.Context, participant, role string) error {
	s.mu.Lock()
	if s.status == StatusCompleted || s.status == StatusCancelled {
		s.mu.Unlock()
		return fmt.Errorf("%w: session %s is %s", ErrNotActive, s.id, s.status)
	}
	if _, already := s.participants[participant]; !already {
		if s.rules.MaxParticipants > 0 && len(s.participants) >= s.rules.MaxParticipants {
			s.mu.Unlock()
			return fmt.Errorf("%w: limit %d", ErrCapacityExceeded, s.rules.MaxParticipants)
		}
	}
	if role != "" && len(s.rules.RequiredRoles) > 0 && !containsRole(s.rules.RequiredRoles, role) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if role == "" {
		role = defaultRole
	}
	// The insert and its audit record commit together.
	err := s.auditor.ContractCall(ctx, "collaboration", "add_participant",
		[]string{participant}, map[string]any{"session": s.id, "role": role})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.participants[participant] = role
	if s.status == StatusPending && len(s.participants) > 1 {
		s.status = StatusActive
	}
	s.touch()
	s.mu.Unlock()
	return nil
}

// CreateTask allocates a task for the creator. Only participants may
// create tasks.
func (s *Session) CreateTask(ctx context.Context, creator string, data map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[creator]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotParticipant, creator)
	}

	task := &Task{
		ID:         ids.New(),
		Creator:    creator,
		Status:     "pending",
		Created:    s.now(),
		Data:       data,
		ReviewedBy: make(map[string]struct{}),
	}
	s.tasks[task.ID] = task
	s.touch()
	return task.ID, nil
}

// CompleteTask marks a task completed. Any participant may complete a
// task.
func (s *Session) CompleteTask(ctx context.Context, participant, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[participant]; !ok {
		return fmt.Errorf("%w: %s", ErrNotParticipant, participant)
	}
	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	task.Status = "completed"
	s.touch()
	return nil
}

// ReviewTask records that the participant reviewed the task. Completion of
// a review-gated session requires every participant to have reviewed at
// least one task.
func (s *Session) ReviewTask(ctx context.Context, reviewer, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[reviewer]; !ok {
		return fmt.Errorf("%w: %s", ErrNotParticipant, reviewer)
	}
	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	task.ReviewedBy[reviewer] = struct{}{}
	s.touch()
	return nil
}

// SubmitVote records a yes/no vote on a proposal key and reports whether
// the weighted threshold is now met. Voting no removes a previous yes, so
// re-voting toggles rather than accumulates. This is a poll: no state
// transition happens when the threshold is reached.
func (s *Session) SubmitVote(ctx context.Context, voter, proposal string, support bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[voter]; !ok {
		return false, fmt.Errorf("%w: %s", ErrNotParticipant, voter)
	}

	set, ok := s.votes[proposal]
	if !ok {
		set = make(map[string]struct{})
		s.votes[proposal] = set
	}
	if support {
		set[voter] = struct{}{}
	} else {
		delete(set, voter)
	}
	s.touch()

	if s.rules.VotingThreshold <= 0 {
		return false, nil
	}
	threshold := float64(len(s.participants)) * s.rules.VotingThreshold
	return float64(len(set)) >= threshold, nil
}

// Complete transitions a non-terminal session to completed. When the
// ruleset demands reviews, every participant must have a reviewed task on
// record.
func (s *Session) Complete(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusCompleted || s.status == StatusCancelled {
		s.mu.Unlock()
		return fmt.Errorf("%w: session %s is %s", ErrNotActive, s.id, s.status)
	}
	if s.rules.ReviewRequirement {
		for p := range s.participants {
			if !s.hasReviewed(p) {
				s.mu.Unlock()
				return fmt.Errorf("%w: %s", ErrReviewIncomplete, p)
			}
		}
	}
	actors := s.participantList()
	err := s.auditor.ContractCall(ctx, "collaboration", "complete",
		actors, map[string]any{"session": s.id, "type": string(s.typ)})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.status = StatusCompleted
	s.touch()
	s.mu.Unlock()
	return nil
}

// Cancel transitions a non-terminal session to cancelled.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusCompleted || s.status == StatusCancelled {
		s.mu.Unlock()
		return fmt.Errorf("%w: session %s is %s", ErrNotActive, s.id, s.status)
	}
	err := s.auditor.ContractCall(ctx, "collaboration", "cancel",
		[]string{s.initiator}, map[string]any{"session": s.id})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.status = StatusCancelled
	s.touch()
	s.mu.Unlock()
	return nil
}

// GetMetrics returns the derived session metrics. The score blends task
// completion (40%), participant ratio (40%) and remaining time (20%),
// clamped to [0, 100].
func (s *Session) GetMetrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed := 0
	for _, t := range s.tasks {
		if t.Status == "completed" {
			completed++
		}
	}

	return Metrics{
		ParticipantCount: len(s.participants),
		CompletedTasks:   completed,
		ActiveTime:       s.lastActivity.Sub(s.startTime),
		LastActivity:     s.lastActivity,
		Score:            s.score(completed),
	}
}

func (s *Session) score(completedTasks int) float64 {
	taskCompletion := 1.0
	if len(s.tasks) > 0 {
		taskCompletion = float64(completedTasks) / float64(len(s.tasks))
	}

	participantRatio := 1.0
	if s.rules.MinParticipants > 0 {
		participantRatio = float64(len(s.participants)) / float64(s.rules.MinParticipants)
		if participantRatio > 1 {
			participantRatio = 1
		}
	}

	timeFactor := 1.0
	if s.rules.TimeLimit > 0 {
		elapsed := s.lastActivity.Sub(s.startTime)
		timeFactor = 1 - float64(elapsed)/float64(s.rules.TimeLimit)
	}

	score := (taskCompletion*0.4 + participantRatio*0.4 + timeFactor*0.2) * 100
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func (s *Session) touch() {
	s.lastActivity = s.now()
}

// hasReviewed reports whether the participant reviewed any task. Callers
// must hold the lock.
func (s *Session) hasReviewed(participant string) bool {
	for _, t := range s.tasks {
		if _, ok := t.ReviewedBy[participant]; ok {
			return true
		}
	}
	return false
}

// participantList snapshots participant ids. Callers must hold the lock.
func (s *Session) participantList() []string {
	out := make([]string, 0, len(s.participants))
	for p := range s.participants {
		out = append(out, p)
	}
	return out
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
