// Package core defines the anti-forgery token model and the guard that issues
// and validates tokens.
//
// # Token lifecycle
//
// A token is issued for a scope (usually a form name) and bound to an access
// key derived from the scope, the client's user-agent and the client's IP.
// The record is written to a SessionStore under (session, access key, token
// name) and later consumed by exactly one matching POST:
//
//	Unissued -> Issued -> Consumed
//	                   -> Expired (never consumed, removed by the store)
//
// # Collaborators
//
// The guard never touches HTTP or a concrete database. It depends on:
//   - SessionStore: key-value storage of TokenRecord values per session
//   - RequestContext: method, POST fields and client fingerprint of a request
//   - TokenGenerator: the random strategy, chosen once at startup
//   - Reporter: the operator channel used when a form posts without protection
package core
