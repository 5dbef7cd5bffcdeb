// Package notify delivers new-listing alerts. The watcher only depends on
// the Notifier interface, so delivery can be swapped or silenced without
// touching scan logic.
package notify

import (
	"context"
	"fmt"
	"strings"

	"flatwatch-go/pkg/listing"
	"flatwatch-go/pkg/logger"
)

// Notifier sends one message to all configured destinations. Delivery is
// best-effort: a failed destination must not block the remaining ones.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// NoopNotifier logs messages instead of delivering them. Used when no bot
// token is configured, for dry runs against live sites.
type NoopNotifier struct {
	log *logger.Logger
}

func NewNoopNotifier() *NoopNotifier {
	return &NoopNotifier{
		log: logger.GetLogger().WithComponent("noop_notifier"),
	}
}

func (n *NoopNotifier) Send(ctx context.Context, text string) error {
	n.log.WithField("text", text).Info("Notification suppressed")
	return nil
}

// ListingMessage renders the alert text for one new listing. Plain text, no
// markup, so no escaping rules apply regardless of what the URL contains.
func ListingMessage(platform string, c listing.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New listing on %s\n%s", platform, c.URL)
	if c.Page > 0 {
		fmt.Fprintf(&b, "\nPage: %d", c.Page)
	}
	return b.String()
}
