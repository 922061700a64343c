package governance

import (
	"sync"
	"time"
)

// ProposalType selects which execution handler runs when a proposal
// passes.
type ProposalType string

const (
	TypeParameterChange    ProposalType = "parameter_change"
	TypeFeatureToggle      ProposalType = "feature_toggle"
	TypeResourceAllocation ProposalType = "resource_allocation"
)

// ProposalStatus is the proposal lifecycle state. Proposals move from
// active to exactly one of executed, rejected or failed and never leave
// a terminal state.
type ProposalStatus string

const (
	StatusActive   ProposalStatus = "active"
	StatusExecuted ProposalStatus = "executed"
	StatusRejected ProposalStatus = "rejected"
	StatusFailed   ProposalStatus = "failed"
)

// ProposalData is the proposer-supplied payload.
type ProposalData struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Changes     map[string]any `json:"changes,omitempty"`
}

// Vote is one ballot. Re-voting overwrites the voter's previous ballot.
// A voter holding an outgoing delegation casts with doubled weight and the
// ballot carries the delegate in DelegatedFrom.
type Vote struct {
	Voter         string    `json:"voter"`
	Support       bool      `json:"support"`
	Weight        int64     `json:"weight"`
	Timestamp     time.Time `json:"timestamp"`
	DelegatedFrom string    `json:"delegated_from,omitempty"`
}

// Proposal is a read-only snapshot of one proposal.
type Proposal struct {
	ID           string         `json:"id"`
	Type         ProposalType   `json:"type"`
	Status       ProposalStatus `json:"status"`
	Proposer     string         `json:"proposer"`
	Data         ProposalData   `json:"data"`
	Created      time.Time      `json:"created"`
	VotingEndsAt time.Time      `json:"voting_ends_at"`
	ForVotes     int64          `json:"for_votes"`
	AgainstVotes int64          `json:"against_votes"`
	VoteCount    int            `json:"vote_count"`
}

// proposal is the mutable record. Each proposal carries its own lock so
// voting on one proposal never contends with another.
type proposal struct {
	mu           sync.Mutex
	id           string
	typ          ProposalType
	status       ProposalStatus
	proposer     string
	data         ProposalData
	created      time.Time
	votingEndsAt time.Time
	votes        map[string]Vote
}

// tally sums ballot weights. Callers must hold the lock.
func (p *proposal) tally() (forVotes, againstVotes int64) {
	for _, v := range p.votes {
		if v.Support {
			forVotes += v.Weight
		} else {
			againstVotes += v.Weight
		}
	}
	return forVotes, againstVotes
}

// snapshot copies the public view. Callers must hold the lock.
func (p *proposal) snapshot() Proposal {
	forVotes, againstVotes := p.tally()
	return Proposal{
		ID:           p.id,
		Type:         p.typ,
		Status:       p.status,
		Proposer:     p.proposer,
		Data:         p.data,
		Created:      p.created,
		VotingEndsAt: p.votingEndsAt,
		ForVotes:     forVotes,
		AgainstVotes: againstVotes,
		VoteCount:    len(p.votes),
	}
}
