package governance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"neplus.org/internal/access"
	"neplus.org/internal/audit"
	"neplus.org/internal/ids"
	"neplus.org/internal/obs"
)

const (
	defaultQuorum       = 100
	defaultVotingPeriod = 7 * 24 * time.Hour
)

// Handler executes a passed proposal. A handler error marks the proposal
// failed.
type Handler func(ctx context.Context, p Proposal) error

// Metrics is the derived read view over the governance system.
type Metrics struct {
	TotalProposals  int                  `json:"total_proposals"`
	ActiveProposals int                  `json:"active_proposals"`
	TotalVotes      int                  `json:"total_votes"`
	Delegations     int                  `json:"delegations"`
	ProposalTypes   map[ProposalType]int `json:"proposal_types"`
}

// System is the proposal and voting engine. Proposals execute as soon as
// the quorum is reached with more weight for than against; the voting
// window only bounds how long an undecided proposal stays open.
type System struct {
	mu          sync.RWMutex
	proposals   map[string]*proposal
	delegations map[string]string

	access       *access.Control
	auditor      *audit.Auditor
	quorum       int64
	votingPeriod time.Duration
	handlers     map[ProposalType]Handler
	now          func() time.Time
}

// Option configures a System.
type Option func(*System)

// WithQuorum overrides the total-weight threshold for execution.
func WithQuorum(q int64) Option {
	return func(s *System) {
		if q > 0 {
			s.quorum = q
		}
	}
}

// WithVotingPeriod overrides how long proposals accept votes.
func WithVotingPeriod(d time.Duration) Option {
	return func(s *System) {
		if d > 0 {
			s.votingPeriod = d
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *System) { s.now = now }
}

// WithHandler replaces the execution handler for one proposal type.
func WithHandler(typ ProposalType, h Handler) Option {
	return func(s *System) { s.handlers[typ] = h }
}

// New creates a governance system with log-only default handlers.
func New(ac *access.Control, auditor *audit.Auditor, opts ...Option) *System {
	s := &System{
		proposals:    make(map[string]*proposal),
		delegations:  make(map[string]string),
		access:       ac,
		auditor:      auditor,
		quorum:       defaultQuorum,
		votingPeriod: defaultVotingPeriod,
		handlers:     make(map[ProposalType]Handler),
		now:          time.Now,
	}
	for _, typ := range []ProposalType{TypeParameterChange, TypeFeatureToggle, TypeResourceAllocation} {
		s.handlers[typ] = logHandler(typ)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func logHandler(typ ProposalType) Handler {
	return func(ctx context.Context, p Proposal) error {
		obs.Emit(map[string]any{
			"level":    "info",
			"msg":      "proposal executed",
			"proposal": p.ID,
			"type":     string(typ),
			"title":    p.Data.Title,
		})
		return nil
	}
}

// CreateProposal opens a proposal for voting. The proposer needs the
// create:project permission. The audit record is written before the
// proposal becomes visible.
func (s *System) CreateProposal(ctx context.Context, proposer string, typ ProposalType, data ProposalData) (Proposal, error) {
	if !s.access.HasPermission(proposer, access.PermCreateProject) {
		_ = s.auditor.AccessViolation(ctx, proposer, "governance", map[string]any{
			"instruction": "create_proposal",
			"type":        string(typ),
		})
		return Proposal{}, fmt.Errorf("%w: %s may not create proposals", ErrUnauthorized, proposer)
	}

	now := s.now()
	p := &proposal{
		id:           ids.New(),
		typ:          typ,
		status:       StatusActive,
		proposer:     proposer,
		data:         data,
		created:      now,
		votingEndsAt: now.Add(s.votingPeriod),
		votes:        make(map[string]Vote),
	}

	s.mu.Lock()
	err := s.auditor.ContractCall(ctx, "governance", "create_proposal",
		[]string{proposer}, map[string]any{"proposal": p.id, "type": string(typ), "title": data.Title})
	if err != nil {
		s.mu.Unlock()
		return Proposal{}, err
	}
	s.proposals[p.id] = p
	s.mu.Unlock()

	obs.ObserveGovernanceOp("create")
	return p.snapshot(), nil
}

// CastVote records or overwrites the voter's ballot. Weight defaults to
// one; a voter with an active outgoing delegation casts with doubled
// weight and the ballot is tagged with the delegate. Execution is checked
// after every ballot, so a proposal can pass before its window closes.
func (s *System) CastVote(ctx context.Context, voter, proposalID string, support bool, weight int64) (Proposal, error) {
	p, err := s.lookup(proposalID)
	if err != nil {
		return Proposal{}, err
	}
	if weight <= 0 {
		weight = 1
	}
	delegate, delegated := s.delegateOf(voter)

	now := s.now()
	p.mu.Lock()
	if p.status != StatusActive {
		status := p.status
		p.mu.Unlock()
		return Proposal{}, fmt.Errorf("%w: proposal %s is %s", ErrNotActive, proposalID, status)
	}
	if now.After(p.votingEndsAt) {
		p.mu.Unlock()
		return Proposal{}, fmt.Errorf("%w: proposal %s", ErrVotingClosed, proposalID)
	}

	effective := weight
	vote := Vote{
		Voter:     voter,
		Support:   support,
		Weight:    weight,
		Timestamp: now,
	}
	if delegated {
		effective = weight * 2
		vote.Weight = effective
		vote.DelegatedFrom = delegate
	}

	// The ballot and its audit record commit together.
	err = s.auditor.ContractCall(ctx, "governance", "cast_vote",
		[]string{voter}, map[string]any{"proposal": proposalID, "support": support, "weight": effective})
	if err != nil {
		p.mu.Unlock()
		return Proposal{}, err
	}
	p.votes[voter] = vote

	forVotes, againstVotes := p.tally()
	execute := forVotes+againstVotes >= s.quorum && forVotes > againstVotes
	if execute {
		p.status = StatusExecuted
	}
	snap := p.snapshot()
	p.mu.Unlock()

	obs.ObserveGovernanceOp("vote")

	if execute {
		return s.runExecution(ctx, p, snap)
	}
	return snap, nil
}

// runExecution invokes the type handler for a proposal already marked
// executed. A handler error demotes the proposal to failed.
func (s *System) runExecution(ctx context.Context, p *proposal, snap Proposal) (Proposal, error) {
	handler := s.handlers[snap.Type]
	if handler != nil {
		if err := handler(ctx, snap); err != nil {
			p.mu.Lock()
			p.status = StatusFailed
			snap = p.snapshot()
			p.mu.Unlock()
			return snap, fmt.Errorf("governance: execute %s: %w", snap.ID, err)
		}
	}

	_ = s.auditor.ContractCall(ctx, "governance", "execute",
		[]string{snap.Proposer}, map[string]any{
			"proposal": snap.ID,
			"for":      snap.ForVotes,
			"against":  snap.AgainstVotes,
		})
	obs.ObserveGovernanceOp("execute")
	return snap, nil
}

// DelegateVote records that from lends their voting power to to. A voter
// may hold at most one outgoing delegation.
func (s *System) DelegateVote(ctx context.Context, from, to string) error {
	if from == to {
		return fmt.Errorf("%w: %s", ErrSelfDelegation, from)
	}

	s.mu.Lock()
	if existing, ok := s.delegations[from]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s already delegates to %s", ErrAlreadyDelegated, from, existing)
	}
	err := s.auditor.ContractCall(ctx, "governance", "delegate",
		[]string{from, to}, map[string]any{"from": from, "to": to})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.delegations[from] = to
	s.mu.Unlock()

	obs.ObserveGovernanceOp("delegate")
	return nil
}

// RevokeDelegation removes an outgoing delegation. Ballots already cast
// with the delegated weight are not recounted.
func (s *System) RevokeDelegation(ctx context.Context, from string) error {
	s.mu.Lock()
	to, ok := s.delegations[from]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoDelegation, from)
	}
	err := s.auditor.ContractCall(ctx, "governance", "revoke_delegation",
		[]string{from}, map[string]any{"from": from, "to": to})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	delete(s.delegations, from)
	s.mu.Unlock()

	obs.ObserveGovernanceOp("revoke_delegation")
	return nil
}

// SweepExpired finalizes active proposals whose voting window has
// closed and returns how many transitioned. A closed proposal that
// already meets the execution bar executes; anything else is rejected.
func (s *System) SweepExpired(ctx context.Context) int {
	s.mu.RLock()
	snapshot := make([]*proposal, 0, len(s.proposals))
	for _, p := range s.proposals {
		snapshot = append(snapshot, p)
	}
	s.mu.RUnlock()

	now := s.now()
	swept := 0
	for _, p := range snapshot {
		p.mu.Lock()
		if p.status != StatusActive || !now.After(p.votingEndsAt) {
			p.mu.Unlock()
			continue
		}
		forVotes, againstVotes := p.tally()
		execute := forVotes+againstVotes >= s.quorum && forVotes > againstVotes
		if execute {
			p.status = StatusExecuted
		} else {
			p.status = StatusRejected
		}
		snap := p.snapshot()
		p.mu.Unlock()
		swept++

		if execute {
			_, _ = s.runExecution(ctx, p, snap)
			continue
		}
		_ = s.auditor.ContractCall(ctx, "governance", "reject",
			[]string{snap.Proposer}, map[string]any{
				"proposal": snap.ID,
				"for":      snap.ForVotes,
				"against":  snap.AgainstVotes,
			})
		obs.ObserveGovernanceOp("reject")
	}
	return swept
}

// GetProposal returns a snapshot of one proposal.
func (s *System) GetProposal(id string) (Proposal, error) {
	p, err := s.lookup(id)
	if err != nil {
		return Proposal{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot(), nil
}

// ProposalVotes returns the ballots on a proposal ordered by cast time,
// then voter.
func (s *System) ProposalVotes(id string) ([]Vote, error) {
	p, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	out := make([]Vote, 0, len(p.votes))
	for _, v := range p.votes {
		out = append(out, v)
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Voter < out[j].Voter
	})
	return out, nil
}

// GetMetrics returns derived counters over the proposal registry.
func (s *System) GetMetrics() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := Metrics{
		TotalProposals: len(s.proposals),
		Delegations:    len(s.delegations),
		ProposalTypes:  make(map[ProposalType]int),
	}
	for _, p := range s.proposals {
		p.mu.Lock()
		if p.status == StatusActive {
			m.ActiveProposals++
		}
		m.TotalVotes += len(p.votes)
		m.ProposalTypes[p.typ]++
		p.mu.Unlock()
	}
	return m
}

func (s *System) lookup(id string) (*proposal, error) {
	s.mu.RLock()
	p, ok := s.proposals[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// delegateOf returns who the voter currently delegates to.
func (s *System) delegateOf(voter string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	to, ok := s.delegations[voter]
	return to, ok
}
