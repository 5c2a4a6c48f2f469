// Package reliability owns acknowledgment bookkeeping for reliable packets.
//
// Ownership boundary:
// - per-destination outstanding packet lists
// - verbatim retransmission on heartbeat ticks
// - retry policy (fixed delay by default, optional backoff and attempt cap)
//
// With the default policy a peer that never acknowledges keeps its packets
// outstanding until the owning controller closes.
package reliability
