// Package token tracks the NEPLUS platform token in memory: a fixed
// maximum supply, per-account balances and a transfer lock the platform
// authority can engage. Every movement is written to the audit log
// before it commits.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"neplus.org/internal/audit"
)

const (
	// DefaultSymbol is the platform token symbol.
	DefaultSymbol = "NEPLUS"
	// DefaultMaxSupply is the hard cap on minted tokens.
	DefaultMaxSupply = 100_000_000
)

var (
	ErrInvalidAmount     = errors.New("token: amount must be positive")
	ErrSupplyExceeded    = errors.New("token: maximum supply exceeded")
	ErrInsufficientFunds = errors.New("token: insufficient balance")
	ErrTransferLocked    = errors.New("token: transfers are locked")
)

// Supply is the in-memory ledger for the platform token. The authority
// account mints and controls the transfer lock.
type Supply struct {
	mu          sync.RWMutex
	symbol      string
	authority   string
	maxSupply   int64
	circulating int64
	balances    map[string]int64
	locked      bool

	auditor *audit.Auditor
}

// Option configures a Supply.
type Option func(*Supply)

// WithMaxSupply overrides the supply cap.
func WithMaxSupply(n int64) Option {
	return func(s *Supply) {
		if n > 0 {
			s.maxSupply = n
		}
	}
}

// WithSymbol overrides the token symbol.
func WithSymbol(sym string) Option {
	return func(s *Supply) {
		if sym != "" {
			s.symbol = sym
		}
	}
}

// New creates an empty ledger controlled by the authority account.
func New(authority string, auditor *audit.Auditor, opts ...Option) *Supply {
	s := &Supply{
		symbol:    DefaultSymbol,
		authority: authority,
		maxSupply: DefaultMaxSupply,
		balances:  make(map[string]int64),
		auditor:   auditor,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// asset describes this ledger to the auditor. Supply-relative escalation
// uses the cap, not the circulating amount, so the threshold is stable.
func (s *Supply) asset() audit.Asset {
	return audit.Asset{Symbol: s.symbol, Authority: s.authority, TotalSupply: s.maxSupply}
}

// Mint credits newly created tokens to an account. The audit record is
// written before the balance changes; a failed append mints nothing.
func (s *Supply) Mint(ctx context.Context, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.circulating+amount > s.maxSupply {
		return fmt.Errorf("%w: %d + %d > %d", ErrSupplyExceeded, s.circulating, amount, s.maxSupply)
	}
	if err := s.auditor.TokenTransfer(ctx, "mint", s.asset(), amount, "", to); err != nil {
		return err
	}
	s.circulating += amount
	s.balances[to] += amount
	return nil
}

// Burn removes tokens from an account and shrinks circulation.
func (s *Supply) Burn(ctx context.Context, from string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.balances[from] < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, s.balances[from], amount)
	}
	if err := s.auditor.TokenTransfer(ctx, "burn", s.asset(), amount, from, ""); err != nil {
		return err
	}
	s.balances[from] -= amount
	if s.balances[from] == 0 {
		delete(s.balances, from)
	}
	s.circulating -= amount
	return nil
}

// Transfer moves tokens between accounts. Transfers are refused while
// the lock is engaged; the authority is exempt so recovery moves stay
// possible.
func (s *Supply) Transfer(ctx context.Context, from, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked && from != s.authority {
		return ErrTransferLocked
	}
	if s.balances[from] < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, s.balances[from], amount)
	}
	if err := s.auditor.TokenTransfer(ctx, "transfer", s.asset(), amount, from, to); err != nil {
		return err
	}
	s.balances[from] -= amount
	if s.balances[from] == 0 {
		delete(s.balances, from)
	}
	s.balances[to] += amount
	return nil
}

// SetLocked engages or releases the transfer lock.
func (s *Supply) SetLocked(locked bool) {
	s.mu.Lock()
	s.locked = locked
	s.mu.Unlock()
}

// Locked reports whether transfers are currently refused.
func (s *Supply) Locked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locked
}

// Balance returns the account balance. Unknown accounts hold zero.
func (s *Supply) Balance(account string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[account]
}

// Circulating returns the total minted and not burned.
func (s *Supply) Circulating() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.circulating
}

// Symbol returns the token symbol.
func (s *Supply) Symbol() string { return s.symbol }

// MaxSupply returns the supply cap.
func (s *Supply) MaxSupply() int64 { return s.maxSupply }

// Authority returns the controlling account.
func (s *Supply) Authority() string { return s.authority }
