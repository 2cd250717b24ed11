package p2p

// Peer is a single remote connection capable of sending framed messages.
// Concrete transports (internal/transport's libp2p adapter, or a test
// double) implement this without the worker knowing anything about
// streams, multiaddrs, or peer IDs.
type Peer interface {
	ID() string
	Send(Message) error
}
