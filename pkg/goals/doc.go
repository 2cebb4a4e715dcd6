// Package goals implements OKR storage and the authorization-gated CRUD on
// top of it. Every operation consults the engine; list responses are
// pre-filtered by the visibility policy.
package goals
