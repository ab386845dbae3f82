package service

import "errors"

var (
	ErrInvalidMatchID  = errors.New("invalid match id")
	ErrMissingPlayerID = errors.New("missing player id")
	// ErrTeamDataMissing is a hard failure: with no team data there is no
	// safe way to create meaningful team channels, and fabricating
	// placeholder teams is worse than refusing.
	ErrTeamDataMissing = errors.New("team rosters are empty")
)
