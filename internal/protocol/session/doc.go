// Package session owns the table of trusted peers.
//
// Ownership boundary:
// - session identity (endpoint, id) and validity
// - capacity limits
// - idle expiry timers
//
// Sending disconnect notices is the controller's job; the table only tracks membership.
package session
