package dashclient

import "errors"

var (
	// ErrBuilderUsed is returned by a second call to [Builder.Build].
	ErrBuilderUsed = errors.New("builder already used")
	// ErrClientClosed is returned by operations on a closed [Client].
	ErrClientClosed = errors.New("client closed")
	// ErrNoCredential is returned when an operation needs a stored token and
	// none is present.
	ErrNoCredential = errors.New("no stored credential")
	// ErrRedisRequired is returned when the redis session backend has neither
	// a client nor an address.
	ErrRedisRequired = errors.New("redis session backend requires a client or address")
)
