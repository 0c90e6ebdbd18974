package shared

import "errors"

// Error classes shared by both peers. Callers wrap them with fmt.Errorf("...: %w", ...)
// and classify with errors.Is.
var (
	// ErrConfiguration reports an invalid host, port or setting detected before
	// any connection attempt.
	ErrConfiguration = errors.New("configuration error")

	// ErrConnection reports an unreachable host or a broken connection. It is
	// fatal to the current session only.
	ErrConnection = errors.New("connection error")

	// ErrProtocol reports a malformed or undecodable record. The peer state is
	// undefined afterwards and the connection must be torn down.
	ErrProtocol = errors.New("protocol error")

	// ErrAuthentication reports a failed login attempt. It is recoverable.
	ErrAuthentication = errors.New("authentication failed")

	// ErrEmptyUsername is returned by message constructors given an empty username.
	ErrEmptyUsername = errors.New("username cannot be empty")
)
