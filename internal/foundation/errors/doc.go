// Package errors provides the classified error primitives used across lastsignal.
//
// Every failure mode of the dead man's switch maps to a category:
//   - CategoryConfig: invalid configuration, fatal before the daemon starts
//   - CategoryState: state file read/write failures, retried on the next tick
//   - CategoryChannel: output channel failures, recovered by dispatcher failover
//   - CategoryProvider: automatic check-in source failures, never fatal
//   - CategoryTemplate: emergency message composition failures, logged at critical severity
//
// Example usage:
//
//	err := errors.StateError("failed to replace state file").
//		WithCause(renameErr).
//		WithContext("path", path).
//		Build()
package errors
