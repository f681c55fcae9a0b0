package notify

import "context"

// Sender delivers a single notification to a set of opaque sink URLs. It
// is the seam over the external multi-sink dispatch library; the only
// contract the core relies on is send(title?, body, avatarURL?, urls[]) →
// error within the caller's context deadline.
type Sender interface {
	Send(ctx context.Context, title, body, avatarURL string, urls []string) error
}
