package chathub

// Client is one live transport connection (e.g. a WebSocket). The hub only
// ever talks to it through its outbound channel.
type Client interface {
	// GetConnID returns the unique id assigned to the connection at upgrade.
	GetConnID() string

	// GetSendChannel returns the buffered channel the hub enqueues encoded
	// frames on. It is drained by exactly one writer.
	GetSendChannel() chan<- []byte

	// Run starts the client's read and write pumps.
	Run()
	// Close closes the outbound channel. Calling it more than once is safe.
	Close()
}
