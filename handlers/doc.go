// Package handlers supplies concrete handlerregistry.Handler strategies:
// stand-ins for the persistence- and transport-specific handlers a real
// deployment would register, used by the example wiring and by tests that
// need a deterministic Handle implementation.
package handlers
