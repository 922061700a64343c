package collab

import (
	"context"
	"errors"
	"testing"

	"neplus.org/internal/access"
	"neplus.org/internal/audit"
)

func TestInitializeRequiresCreatePermission(t *testing.T) {
	ac := access.NewControl()
	auditor := audit.New()
	p := NewProtocol(ac, auditor)
	ctx := context.Background()

	_, err := p.InitializeCollaboration(ctx, "p1", TypeProject, DefaultProjectRules(), "mallory")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	// The refusal itself is evidence: one violation record, no
	// contract calls.
	violations := auditor.Events(audit.Filter{Type: audit.TypeAccessViolation})
	if len(violations) != 1 {
		t.Fatalf("expected 1 access violation, got %d", len(violations))
	}
	if violations[0].Actor != "mallory" {
		t.Fatalf("unexpected actor %q", violations[0].Actor)
	}
	if calls := auditor.Events(audit.Filter{Type: audit.TypeContractCall}); len(calls) != 0 {
		t.Fatalf("expected no contract calls, got %d", len(calls))
	}
}

func TestProjectLifecycle(t *testing.T) {
	ac := access.NewControl()
	auditor := audit.New()
	p := NewProtocol(ac, auditor)
	ctx := context.Background()

	ac.AssignRole("alice", access.RoleCreator)

	rules := DefaultProjectRules()
	rules.MaxParticipants = 2
	session, err := p.InitializeCollaboration(ctx, "p1", TypeProject, rules, "alice")
	if err != nil {
		t.Fatalf("InitializeCollaboration: %v", err)
	}
	if session.Type() != TypeProject {
		t.Fatalf("unexpected type %s", session.Type())
	}

	if err := p.JoinCollaboration(ctx, "p1", "bob", "developer"); err != nil {
		t.Fatal(err)
	}
	if err := p.JoinCollaboration(ctx, "p1", "carol", "designer"); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}

	if calls := auditor.Events(audit.Filter{Type: audit.TypeContractCall}); len(calls) != 2 {
		t.Fatalf("expected initialize + join to be audited, got %d events", len(calls))
	}
}

func TestInitializeDuplicateID(t *testing.T) {
	ac := access.NewControl()
	p := NewProtocol(ac, audit.New())
	ctx := context.Background()

	ac.AssignRole("alice", access.RoleCreator)

	if _, err := p.InitializeCollaboration(ctx, "p1", TypeProject, DefaultProjectRules(), "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.InitializeCollaboration(ctx, "p1", TypeResource, DefaultResourceExchangeRules(), "alice"); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestJoinUnknownSession(t *testing.T) {
	p := NewProtocol(access.NewControl(), audit.New())
	if err := p.JoinCollaboration(context.Background(), "nope", "bob", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestActiveCollaborations(t *testing.T) {
	ac := access.NewControl()
	p := NewProtocol(ac, audit.New())
	ctx := context.Background()

	ac.AssignRole("alice", access.RoleCreator)

	rules := DefaultProjectRules()
	rules.RequiredRoles = nil
	for _, id := range []string{"a", "b", "c"} {
		if _, err := p.InitializeCollaboration(ctx, id, TypeProject, rules, "alice"); err != nil {
			t.Fatal(err)
		}
	}

	// a stays pending, b activates, c activates then cancels.
	if err := p.JoinCollaboration(ctx, "b", "bob", ""); err != nil {
		t.Fatal(err)
	}
	if err := p.JoinCollaboration(ctx, "c", "bob", ""); err != nil {
		t.Fatal(err)
	}
	cSession, _ := p.Get("c")
	if err := cSession.Cancel(ctx); err != nil {
		t.Fatal(err)
	}

	active := p.ActiveCollaborations()
	if len(active) != 1 || active[0].ID() != "b" {
		t.Fatalf("expected only b active, got %d sessions", len(active))
	}
}

func TestSessionMetricsUnknown(t *testing.T) {
	p := NewProtocol(access.NewControl(), audit.New())
	if _, err := p.SessionMetrics("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResourceExchangeUnanimity(t *testing.T) {
	ac := access.NewControl()
	p := NewProtocol(ac, audit.New())
	ctx := context.Background()

	ac.AssignRole("alice", access.RoleCreator)

	session, err := p.InitializeCollaboration(ctx, "x1", TypeResource, DefaultResourceExchangeRules(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if err := session.AddParticipant(ctx, "bob", ""); err != nil {
		t.Fatal(err)
	}

	met, err := session.SubmitVote(ctx, "alice", "settle", true)
	if err != nil || met {
		t.Fatalf("one of two votes must not settle: met=%v err=%v", met, err)
	}
	met, err = session.SubmitVote(ctx, "bob", "settle", true)
	if err != nil || !met {
		t.Fatalf("unanimity must settle: met=%v err=%v", met, err)
	}
}
