// Package state persists the check-in and escalation history of the switch.
//
// The state file is the single source of truth across restarts. Writes go to a
// temporary file in the same directory which is fsynced and renamed over
// state.json, so a reader never observes a half-written record. Read-modify-write
// cycles from separate processes (daemon, one-shot checkin) are serialized by an
// advisory lock on state.json.lock; a writer that cannot get the lock within
// LockTimeout fails with ErrContention instead of blocking.
package state
