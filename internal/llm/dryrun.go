package llm

import (
	"context"
	"fmt"
	"strings"
)

// DryRunClient answers without calling a model. It echoes the conversation
// it would have sent, which is handy for checking prompt composition.
type DryRunClient struct{}

// NewDryRunClient creates a DryRunClient.
func NewDryRunClient() *DryRunClient {
	return &DryRunClient{}
}

// Send returns a rendering of msgs.
func (c *DryRunClient) Send(_ context.Context, msgs []Message) (string, error) {
	return c.render(msgs), nil
}

// SendStream writes the rendering of msgs line by line.
func (c *DryRunClient) SendStream(ctx context.Context, msgs []Message, out chan<- string) error {
	defer close(out)
	for _, line := range strings.SplitAfter(c.render(msgs), "\n") {
		select {
		case out <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *DryRunClient) render(msgs []Message) string {
	var b strings.Builder
	b.WriteString("Dry run: would send the following messages\n")
	for i, m := range msgs {
		fmt.Fprintf(&b, "\n[%d] %s:\n%s\n", i+1, m.Role, m.Content)
	}
	return b.String()
}
