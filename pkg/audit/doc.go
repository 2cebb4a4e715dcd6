// Package audit records the security trail for role lifecycle changes and
// denied access attempts.
//
// The Logger interface has three implementations: DBLogger persists entries
// to SQL, FileLogger appends JSON lines with rotation, and MultiLogger fans
// out to several sinks. A no-op logger is available for tests and for
// deployments that disable auditing.
package audit
