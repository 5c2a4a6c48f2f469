// Package protocol groups the tether wire and session primitives.
//
// Ownership boundary:
// - packet: envelope buffer, header and stream framing
// - registry: packet type definitions and handler dispatch
// - packets: reserved control packet types
// - session: trusted peer table and expiry
// - sequence: outbound stamping and ordered-delivery guard
// - reliability: outstanding reliable packets and retry policy
package protocol
