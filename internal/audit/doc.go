// Package audit records permission changes, security changes, suspension
// transitions and denied attempts.
//
// Entries are append-only. Denied attempts go through a Throttle so that a
// member hammering a command they cannot use produces one entry per
// cooldown window instead of one per attempt.
package audit
