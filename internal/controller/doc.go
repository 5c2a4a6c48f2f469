// Package controller runs the session protocol on one datagram endpoint.
//
// Ownership boundary:
// - binding the transport and running the receive loop
// - stamping, encoding and sending packets
// - session validation, ordering and acknowledgment on receive
// - the Begin/Accept handshake and disconnect notices
// - raising events for every packet and session transition
//
// Application payloads are registered on the registry passed to New; the
// controller never registers handlers of its own.
package controller
