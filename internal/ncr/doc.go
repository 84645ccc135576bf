// Package ncr decides which non-conformance report status changes are legal.
//
// Everything here is a pure function over the transition table: no storage, no I/O.
// Callers at the HTTP boundary enforce the result with ValidateTransition; UI code uses
// AllowedTransitions to decide which actions to offer.
package ncr
