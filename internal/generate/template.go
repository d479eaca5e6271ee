package generate

import (
	"context"
	"fmt"
)

// Template is the terminal backend. It is deterministic and always succeeds,
// so the chain can never block the pipeline on total backend unavailability.
type Template struct{}

func (Template) Name() string { return "template" }

func (Template) Generate(_ context.Context, req Request, _ string) (string, error) {
	topic := req.Topic
	if topic == "" {
		topic = "tech"
	}
	return fmt.Sprintf("Quick thought about %s.", topic), nil
}
