package collab

import "errors"

var (
	ErrUnauthorized     = errors.New("collab: unauthorized")
	ErrNotFound         = errors.New("collab: not found")
	ErrExists           = errors.New("collab: already exists")
	ErrCapacityExceeded = errors.New("collab: maximum participants reached")
	ErrInvalidRole      = errors.New("collab: invalid role for collaboration")
	ErrNotParticipant   = errors.New("collab: not a participant")
	ErrReviewIncomplete = errors.New("collab: not all participants have reviewed")
	ErrNotActive        = errors.New("collab: session is not active")
)
