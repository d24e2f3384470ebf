// Package middleware exposes the HTTP access guard built on top of
// authgate.Engine validation.
//
// # Default-deny
//
// [Guard] protects every route it wraps; opt-outs are explicit entries
// in [GuardConfig.PublicPaths]. Adding a route to a guarded mux without
// touching the config therefore yields a protected route, never an
// accidentally public one.
//
// # Architecture boundaries
//
// This package translates HTTP semantics (cookies, Authorization
// headers, remote addresses) into Engine calls. It does NOT implement
// authentication logic itself — all decisions are delegated to
// Engine.Validate.
package middleware
