package feed

import "errors"

var (
	// ErrInvalidFeed marks sources that cannot be fetched or parsed. At
	// registration time this is a user-facing validation failure.
	ErrInvalidFeed = errors.New("invalid feed")

	// ErrDuplicateFeed marks a registration attempt for a URL that already
	// has a feed. Reported as a conflict, never retried.
	ErrDuplicateFeed = errors.New("feed already exists")
)
