package collab

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"neplus.org/internal/access"
	"neplus.org/internal/audit"
)

func testProtocol(t *testing.T) (*Protocol, *access.Control, *audit.Auditor) {
	t.Helper()
	ac := access.NewControl()
	auditor := audit.New()
	return NewProtocol(ac, auditor), ac, auditor
}

func newTestSession(t *testing.T, rules Rules) *Session {
	t.Helper()
	p, ac, _ := testProtocol(t)
	ac.AssignRole("alice", access.RoleCreator)
	session, err := p.InitializeCollaboration(context.Background(), "s1", TypeProject, rules, "alice")
	if err != nil {
		t.Fatalf("InitializeCollaboration: %v", err)
	}
	return session
}

func TestInitializeSeedsInitiator(t *testing.T) {
	session := newTestSession(t, DefaultProjectRules())

	participants := session.Participants()
	if participants["alice"] != "initiator" {
		t.Fatalf("initiator must be pre-seeded, got %v", participants)
	}
	if session.Status() != StatusPending {
		t.Fatalf("new session must be pending, got %s", session.Status())
	}
}

func TestPendingToActiveOnFirstJoin(t *testing.T) {
	session := newTestSession(t, DefaultProjectRules())
	ctx := context.Background()

	if err := session.AddParticipant(ctx, "bob", "developer"); err != nil {
		t.Fatal(err)
	}
	if session.Status() != StatusActive {
		t.Fatalf("first join beyond the initiator must activate, got %s", session.Status())
	}
}

func TestAddParticipantRoleValidation(t *testing.T) {
	session := newTestSession(t, DefaultProjectRules())
	ctx := context.Background()

	if err := session.AddParticipant(ctx, "eve", "janitor"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	// No explicit role defaults to member and bypasses the check.
	if err := session.AddParticipant(ctx, "bob", ""); err != nil {
		t.Fatal(err)
	}
	if session.Participants()["bob"] != "member" {
		t.Fatalf("default role must be member, got %q", session.Participants()["bob"])
	}
}

func TestCapacityExceeded(t *testing.T) {
	rules := DefaultProjectRules()
	rules.MaxParticipants = 2
	session := newTestSession(t, rules)
	ctx := context.Background()

	if err := session.AddParticipant(ctx, "bob", "developer"); err != nil {
		t.Fatal(err)
	}
	if err := session.AddParticipant(ctx, "carol", "designer"); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

// The capacity check must be atomic with the insert under concurrent
// joins.
func TestCapacityUnderConcurrency(t *testing.T) {
	rules := DefaultProjectRules()
	rules.MaxParticipants = 5
	rules.RequiredRoles = nil
	session := newTestSession(t, rules)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- session.AddParticipant(ctx, string(rune('a'+i)), "")
		}(i)
	}
	wg.Wait()
	close(errs)

	rejected := 0
	for err := range errs {
		if errors.Is(err, ErrCapacityExceeded) {
			rejected++
		} else if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := len(session.Participants()); got != 5 {
		t.Fatalf("participants must never exceed the limit, got %d", got)
	}
	if rejected != 16 {
		t.Fatalf("expected 16 rejections (initiator holds one slot), got %d", rejected)
	}
}

func TestRejoiningParticipantDoesNotConsumeCapacity(t *testing.T) {
	rules := DefaultProjectRules()
	rules.MaxParticipants = 2
	session := newTestSession(t, rules)
	ctx := context.Background()

	if err := session.AddParticipant(ctx, "bob", "developer"); err != nil {
		t.Fatal(err)
	}
	// Re-roling an existing participant is an overwrite, not a join.
	if err := session.AddParticipant(ctx, "bob", "manager"); err != nil {
		t.Fatal(err)
	}
	if session.Participants()["bob"] != "manager" {
		t.Fatal("re-join must overwrite the role")
	}
}

func TestCreateTaskRequiresParticipant(t *testing.T) {
	session := newTestSession(t, DefaultProjectRules())
	ctx := context.Background()

	if _, err := session.CreateTask(ctx, "stranger", nil); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	id, err := session.CreateTask(ctx, "alice", map[string]any{"title": "design review"})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected a task id")
	}
}

func TestSubmitVoteToggle(t *testing.T) {
	rules := DefaultProjectRules()
	rules.RequiredRoles = nil
	rules.VotingThreshold = 0.6
	session := newTestSession(t, rules)
	ctx := context.Background()

	for _, p := range []string{"bob", "carol", "dave", "erin"} {
		if err := session.AddParticipant(ctx, p, ""); err != nil {
			t.Fatal(err)
		}
	}
	// 5 participants, threshold 0.6 -> 3 yes votes needed.

	met, err := session.SubmitVote(ctx, "alice", "merge", true)
	if err != nil || met {
		t.Fatalf("vote 1: met=%v err=%v", met, err)
	}
	met, _ = session.SubmitVote(ctx, "bob", "merge", true)
	if met {
		t.Fatal("vote 2 must not meet threshold")
	}
	// Voting twice in a row is idempotent.
	met, _ = session.SubmitVote(ctx, "bob", "merge", true)
	if met {
		t.Fatal("repeated yes must not change the tally")
	}
	met, _ = session.SubmitVote(ctx, "carol", "merge", true)
	if !met {
		t.Fatal("third yes must meet the threshold")
	}
	// A no vote retracts a yes.
	met, _ = session.SubmitVote(ctx, "carol", "merge", false)
	if met {
		t.Fatal("retracted vote must drop below the threshold")
	}
	met, _ = session.SubmitVote(ctx, "carol", "merge", true)
	if !met {
		t.Fatal("alternating votes must converge to the last value")
	}
}

func TestSubmitVoteRequiresParticipant(t *testing.T) {
	session := newTestSession(t, DefaultProjectRules())
	if _, err := session.SubmitVote(context.Background(), "stranger", "merge", true); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestCompleteRequiresReviews(t *testing.T) {
	rules := DefaultProjectRules()
	rules.RequiredRoles = nil
	session := newTestSession(t, rules)
	ctx := context.Background()

	if err := session.AddParticipant(ctx, "bob", ""); err != nil {
		t.Fatal(err)
	}
	taskID, err := session.CreateTask(ctx, "alice", nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := session.Complete(ctx); !errors.Is(err, ErrReviewIncomplete) {
		t.Fatalf("expected ErrReviewIncomplete, got %v", err)
	}

	if err := session.ReviewTask(ctx, "alice", taskID); err != nil {
		t.Fatal(err)
	}
	if err := session.ReviewTask(ctx, "bob", taskID); err != nil {
		t.Fatal(err)
	}
	if err := session.Complete(ctx); err != nil {
		t.Fatal(err)
	}
	if session.Status() != StatusCompleted {
		t.Fatalf("expected completed, got %s", session.Status())
	}
}

func TestCompleteWithoutReviewRequirement(t *testing.T) {
	rules := DefaultProjectRules()
	rules.ReviewRequirement = false
	session := newTestSession(t, rules)

	if err := session.Complete(context.Background()); err != nil {
		t.Fatal(err)
	}
	if session.Status() != StatusCompleted {
		t.Fatalf("expected completed, got %s", session.Status())
	}
}

func TestCancelTerminal(t *testing.T) {
	session := newTestSession(t, DefaultProjectRules())
	ctx := context.Background()

	if err := session.Cancel(ctx); err != nil {
		t.Fatal(err)
	}
	if session.Status() != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", session.Status())
	}
	if err := session.Cancel(ctx); !errors.Is(err, ErrNotActive) {
		t.Fatalf("cancel must not leave a terminal state, got %v", err)
	}
	if err := session.AddParticipant(ctx, "bob", ""); !errors.Is(err, ErrNotActive) {
		t.Fatalf("terminal session must reject joins, got %v", err)
	}
}

func TestCompleteAfterCancelRejected(t *testing.T) {
	rules := DefaultProjectRules()
	rules.ReviewRequirement = false
	session := newTestSession(t, rules)
	ctx := context.Background()

	if err := session.Cancel(ctx); err != nil {
		t.Fatal(err)
	}
	if err := session.Complete(ctx); !errors.Is(err, ErrNotActive) {
		t.Fatalf("completing a cancelled session must fail, got %v", err)
	}
	if session.Status() != StatusCancelled {
		t.Fatalf("session must stay cancelled, got %s", session.Status())
	}
	if err := session.Cancel(ctx); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

type flakyArchiver struct {
	fail bool
}

func (f *flakyArchiver) Archive(context.Context, audit.Event) error {
	if f.fail {
		return errors.New("archive down")
	}
	return nil
}

// A failed audit append must leave the session untouched.
func TestArchiveFailureLeavesSessionUnchanged(t *testing.T) {
	archiver := &flakyArchiver{}
	ac := access.NewControl()
	ac.AssignRole("alice", access.RoleCreator)
	p := NewProtocol(ac, audit.New(audit.WithArchiver(archiver)))

	rules := DefaultProjectRules()
	rules.ReviewRequirement = false
	session, err := p.InitializeCollaboration(context.Background(), "s1", TypeProject, rules, "alice")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	archiver.fail = true
	if err := session.AddParticipant(ctx, "bob", "developer"); err == nil {
		t.Fatal("expected join to fail when the audit archive fails")
	}
	if _, present := session.Participants()["bob"]; present {
		t.Fatal("failed join must not admit the participant")
	}
	if session.Status() != StatusPending {
		t.Fatalf("failed join must not activate the session, got %s", session.Status())
	}
	if err := session.Complete(ctx); err == nil {
		t.Fatal("expected completion to fail when the audit archive fails")
	}
	if session.Status() != StatusPending {
		t.Fatalf("failed completion must not change state, got %s", session.Status())
	}
	if err := session.Cancel(ctx); err == nil {
		t.Fatal("expected cancel to fail when the audit archive fails")
	}
	if session.Status() != StatusPending {
		t.Fatalf("failed cancel must not change state, got %s", session.Status())
	}

	archiver.fail = false
	if err := session.AddParticipant(ctx, "bob", "developer"); err != nil {
		t.Fatal(err)
	}
	if session.Status() != StatusActive {
		t.Fatalf("recovered archive must admit the join, got %s", session.Status())
	}
}

func TestMetricsAndScoreClamp(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	current := base
	now := func() time.Time { return current }

	ac := access.NewControl()
	ac.AssignRole("alice", access.RoleCreator)
	p := NewProtocol(ac, audit.New(), WithClock(now))

	rules := DefaultProjectRules()
	rules.RequiredRoles = nil
	rules.TimeLimit = 10 * 24 * time.Hour
	session, err := p.InitializeCollaboration(context.Background(), "s1", TypeProject, rules, "alice")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := session.AddParticipant(ctx, "bob", ""); err != nil {
		t.Fatal(err)
	}
	taskID, err := session.CreateTask(ctx, "alice", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := session.CompleteTask(ctx, "alice", taskID); err != nil {
		t.Fatal(err)
	}

	// Push activity far past the time limit; the time factor would be
	// negative without clamping.
	current = base.Add(40 * 24 * time.Hour)
	if _, err := session.SubmitVote(ctx, "alice", "extend", true); err != nil {
		t.Fatal(err)
	}

	m := session.GetMetrics()
	if m.ParticipantCount != 2 || m.CompletedTasks != 1 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
	if m.ActiveTime != 40*24*time.Hour {
		t.Fatalf("unexpected active time: %s", m.ActiveTime)
	}
	if m.Score < 0 || m.Score > 100 {
		t.Fatalf("score must be clamped to [0,100], got %f", m.Score)
	}
}

func TestScoreFullMarks(t *testing.T) {
	rules := DefaultProjectRules()
	rules.RequiredRoles = nil
	session := newTestSession(t, rules)
	ctx := context.Background()

	if err := session.AddParticipant(ctx, "bob", ""); err != nil {
		t.Fatal(err)
	}

	// No tasks counts as full completion; two participants meet the
	// minimum; activity is fresh.
	m := session.GetMetrics()
	if m.Score < 99 || m.Score > 100 {
		t.Fatalf("expected near-perfect score, got %f", m.Score)
	}
}
