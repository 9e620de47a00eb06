// Package perms decides whether a caller may use a gated bot feature.
//
// Three services share one Store:
//
//   - OverrideService keeps per-community allow and deny sets of
//     permission-groups for each feature.
//   - SecurityService owns the bootstrap lifecycle and the protected
//     groups and users that destructive actions may never target.
//   - Gate loads both, runs the pure Evaluate function and records
//     throttled denied-attempt audit entries.
//
// Evaluate performs no I/O and is safe for concurrent use.
package perms
