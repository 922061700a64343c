package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"neplus.org/internal/access"
	"neplus.org/internal/audit"
	"neplus.org/internal/collab"
	"neplus.org/internal/governance"
	"neplus.org/internal/token"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ac := access.NewControl()
	auditor := audit.New()
	protocol := collab.NewProtocol(ac, auditor)
	gov := governance.New(ac, auditor)
	supply := token.New("treasury", auditor)

	ac.AssignRole("alice", access.RoleCreator)

	// Collaboration round-trip.
	rules := collab.DefaultProjectRules()
	rules.ReviewRequirement = false
	session, err := protocol.InitializeCollaboration(ctx, "smoke-p1", collab.TypeProject, rules, "alice")
	if err != nil {
		log.Fatalf("initialize collaboration: %v", err)
	}
	if err := session.AddParticipant(ctx, "bob", "developer"); err != nil {
		log.Fatalf("join: %v", err)
	}
	if session.Status() != collab.StatusActive {
		log.Fatalf("expected active session, got %s", session.Status())
	}
	taskID, err := session.CreateTask(ctx, "alice", map[string]any{"title": "smoke task"})
	if err != nil {
		log.Fatalf("create task: %v", err)
	}
	if err := session.CompleteTask(ctx, "bob", taskID); err != nil {
		log.Fatalf("complete task: %v", err)
	}
	if err := session.Complete(ctx); err != nil {
		log.Fatalf("complete session: %v", err)
	}

	// Unauthorized initiator must be refused and audited.
	if _, err := protocol.InitializeCollaboration(ctx, "smoke-p2", collab.TypeProject, rules, "mallory"); err == nil {
		log.Fatal("expected unauthorized initialization to fail")
	}
	if n := len(auditor.Events(audit.Filter{Type: audit.TypeAccessViolation})); n != 1 {
		log.Fatalf("expected 1 access violation, got %d", n)
	}

	// Governance round-trip with delegation.
	proposal, err := gov.CreateProposal(ctx, "alice", governance.TypeParameterChange, governance.ProposalData{
		Title: "smoke proposal",
	})
	if err != nil {
		log.Fatalf("create proposal: %v", err)
	}
	if err := gov.DelegateVote(ctx, "bob", "alice"); err != nil {
		log.Fatalf("delegate: %v", err)
	}
	// Bob's delegation doubles his ballot, reaching the quorum alone.
	result, err := gov.CastVote(ctx, "bob", proposal.ID, true, 50)
	if err != nil {
		log.Fatalf("cast vote: %v", err)
	}
	if result.Status != governance.StatusExecuted {
		log.Fatalf("expected executed proposal, got %s", result.Status)
	}

	// Token conservation.
	if err := supply.Mint(ctx, "alice", 1_000); err != nil {
		log.Fatalf("mint: %v", err)
	}
	if err := supply.Transfer(ctx, "alice", "bob", 420); err != nil {
		log.Fatalf("transfer: %v", err)
	}
	if supply.Balance("alice")+supply.Balance("bob") != 1_000 {
		log.Fatalf("supply not conserved: alice=%d bob=%d", supply.Balance("alice"), supply.Balance("bob"))
	}

	metrics := auditor.GetMetrics()
	if metrics.TotalEvents == 0 {
		log.Fatal("expected audit events")
	}

	fmt.Printf("✅ trust smoke test passed: events=%d proposal=%s\n", metrics.TotalEvents, proposal.ID)
}
