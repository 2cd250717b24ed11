package p2p

// Server is the transport's view from the worker's side: enough to reach
// every connected peer and to push a message to all of them. The libp2p
// pubsub adapter in internal/transport is the production implementation;
// tests supply an in-memory one.
type Server interface {
	Peers() []Peer
	Broadcast(Message)
}
