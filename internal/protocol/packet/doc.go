// Package packet owns the datagram envelope.
//
// Ownership boundary:
// - cursor-based buffer and primitive codecs
// - fixed header (type id, session id, sequence)
// - optional length-prefixed framing for stream transports
//
// Wire layout per datagram, big-endian:
//
//	int32 type id | int32 session id | uint32 sequence | payload fields
package packet
