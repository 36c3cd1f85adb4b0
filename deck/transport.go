package deck

// Transport is the byte stream the client writes commands to.
//
// The client owns its transport exclusively: nothing else may write to it. Inbound bytes
// are delivered by the transport owner through Client.OnBytesReceived, and the loss of the
// connection through Client.ConnectionLost.
type Transport interface {
	// Write queues p for transmission to the deck.
	Write(p []byte) (int, error)
	// Close closes the underlying connection.
	Close() error
}
