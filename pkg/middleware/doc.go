// Package middleware provides the HTTP request plumbing shared by all
// endpoints: caller identity extraction from gateway headers, request
// correlation IDs, request logging and rate limiting (in-process and
// Redis-backed).
package middleware
