package p2p

// GossipSub topic names. Blocks and transactions share one topic each;
// every framed Message travels as an opaque blob on whichever topic
// matches its payload, and is dispatched by Tag once decoded.
const (
	TopicBlocks       = "/klingnet/block/1.0.0"
	TopicTransactions = "/klingnet/tx/1.0.0"
)
