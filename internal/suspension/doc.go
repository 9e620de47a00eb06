// Package suspension tracks voice-channel suspensions: who is restricted,
// for how long, and how each restriction ended. Suspend and unsuspend are
// gated through perms; expiry notifications from the platform are not.
package suspension
