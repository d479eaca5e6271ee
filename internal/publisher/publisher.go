// Package publisher delivers final post text to an external channel.
package publisher

import "context"

// Publisher accepts final text and returns an opaque post id. The
// idempotency key identifies the logical post so a channel that supports it
// can suppress replays after a crash between publish and state update.
type Publisher interface {
	Publish(ctx context.Context, text, idempotencyKey string) (string, error)
}
