// Package registry maps packet type ids to definitions and handlers.
//
// Ownership boundary:
// - packet definitions (id, ordered, reliable, requires-session)
// - handler lists filtered by controller role
//
// A Registry is an explicit object. Applications populate it at startup, or
// later as modules load, and pass it into each controller.
package registry
