package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Notifier delivers a rendered message.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the global zap logger. It is the default
// when no delivery channel is configured.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(_ context.Context, msg Message) error {
	zap.L().Info("notify: message sent",
		zap.String("template", msg.Template),
		zap.String("recipient", msg.Recipient),
		zap.String("work_item_id", msg.WorkItemID),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// SlackNotifier posts messages to a Slack channel.
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

// NewSlack creates a SlackNotifier. Options are passed to slack.New.
func NewSlack(token, channel string, opts ...slack.Option) *SlackNotifier {
	return &SlackNotifier{
		client:  slack.New(token, opts...),
		channel: channel,
	}
}

// Notify implements Notifier.
func (s *SlackNotifier) Notify(ctx context.Context, msg Message) error {
	text := "*" + msg.Subject + "*\n_To: " + msg.Recipient + "_\n\n" + strings.TrimSpace(msg.Body)
	_, _, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return eris.Wrapf(err, "notify: slack post to %s", s.channel)
	}
	return nil
}

// Multi fans a message out to every notifier. All are attempted; errors
// are joined.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
