// Package node names the surface every tether process exposes to its admin
// HTTP listener.
package node

import "github.com/gin-gonic/gin"

type Node interface {
	NodeID() string
	// Kind is "host" or "joiner".
	Kind() string
	Ready() bool
	HTTPRouter() *gin.Engine
}
