// Package jmx defines the boundary the scheduler binds at construction
// time but never calls into directly (spec §1 Non-goals: "JMX
// client implementation"). A concrete repairaction.Action is the only
// collaborator expected to use a ProxyFactory; this package exists so
// that boundary has a named, typed shape instead of being passed
// around as an untyped handle.
package jmx

import "github.com/coredb/repaird/token"

// Proxy is a connection to one node's repair-management surface.
type Proxy interface {
	Close() error
}

// ProxyFactory opens a Proxy to a given node. Implementations own
// connection pooling and retry; this package only names the contract.
type ProxyFactory interface {
	Connect(node token.NodeId) (Proxy, error)
}
