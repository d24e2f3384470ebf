// Package httpapi exposes the authentication engine over HTTP.
//
// The surface is deliberately small: JSON in, JSON out, one error
// envelope shape for every failure. Protected routes go through the
// default-deny guard from the middleware package; the handlers here
// never re-check tokens themselves.
//
// Error mapping is centralized in writeEngineError so the engine's
// sentinel errors translate to status codes in exactly one place.
// Storage failures surface as a generic 503 without internal detail.
package httpapi
