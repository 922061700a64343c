package governance

import "errors"

var (
	ErrUnauthorized     = errors.New("governance: unauthorized")
	ErrNotFound         = errors.New("governance: proposal not found")
	ErrNotActive        = errors.New("governance: proposal is not active")
	ErrVotingClosed     = errors.New("governance: voting period has ended")
	ErrSelfDelegation   = errors.New("governance: cannot delegate to self")
	ErrAlreadyDelegated = errors.New("governance: delegation already exists")
	ErrNoDelegation     = errors.New("governance: no delegation to revoke")
)
