package notify

import (
	"context"
	"fmt"

	"github.com/containrrr/shoutrrr"
	"github.com/containrrr/shoutrrr/pkg/types"
)

// ShoutrrrSender delivers notifications through containrrr/shoutrrr, a
// multi-sink, URL-addressed dispatch library (Discord, Slack, generic
// webhooks, and more share one URL scheme). This is the external dispatch
// library the specification's §6 refers to abstractly.
type ShoutrrrSender struct{}

// Send builds a router for urls on every call (shoutrrr's senders are
// cheap and stateless to construct) and sends body with an optional title
// and avatar override. It reports failure if any configured sink fails.
func (ShoutrrrSender) Send(ctx context.Context, title, body, avatarURL string, urls []string) error {
	if len(urls) == 0 {
		return nil
	}

	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return fmt.Errorf("building notification sender: %w", err)
	}

	var params *types.Params
	if title != "" || avatarURL != "" {
		params = &types.Params{}
		if title != "" {
			(*params)["title"] = title
		}
		if avatarURL != "" {
			(*params)["avatar"] = avatarURL
		}
	}

	errs := sender.Send(body, params)
	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("delivering notification: %w", err)
		}
	}
	return nil
}
