// Package channel defines the output channel capability and its email and
// messenger implementations.
package channel

import "context"

// Message is what a channel delivers. HTML is an optional alternative body.
type Message struct {
	Subject string
	Body    string
	HTML    string
}

// Channel is a delivery mechanism that can be health checked and used to send.
type Channel interface {
	// Name identifies the channel in logs, state and events.
	Name() string
	// HealthCheck verifies reachability and credentials without sending anything user-visible.
	HealthCheck(ctx context.Context) error
	// Send delivers msg. A failure must not leave partial state behind.
	Send(ctx context.Context, msg Message) error
}
