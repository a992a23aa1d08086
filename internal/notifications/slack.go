package notifications

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
)

// SlackChannel implements the DeliveryChannel interface for Slack
type SlackChannel struct {
	client    *slack.Client
	channelID string
}

// NewSlackChannel creates a Slack delivery channel posting to one channel.
func NewSlackChannel(token, channelID string) (*SlackChannel, error) {
	if token == "" || channelID == "" {
		return nil, fmt.Errorf("slack channel requires a bot token and a channel id")
	}
	return &SlackChannel{client: slack.New(token), channelID: channelID}, nil
}

// Name returns the channel name
func (c *SlackChannel) Name() string {
	return "slack"
}

// Deliver sends a notification to Slack
func (c *SlackChannel) Deliver(ctx context.Context, n *Notification) error {
	blocks := c.buildMessageBlocks(n)
	fallbackText := fmt.Sprintf("%s: %s", n.Title, n.Message)

	_, _, err := c.client.PostMessageContext(
		ctx,
		c.channelID,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(fallbackText, false),
	)
	if err != nil {
		return fmt.Errorf("failed to post Slack message: %w", err)
	}

	log.Debug().
		Str("notification_id", n.ID).
		Str("channel_id", c.channelID).
		Msg("Slack alert sent")
	return nil
}

func (c *SlackChannel) buildMessageBlocks(n *Notification) []slack.Block {
	var emoji string
	switch n.Type {
	case TypeTaskFailed:
		emoji = ":x:"
	case TypeCallbackFailed:
		emoji = ":warning:"
	default:
		emoji = ":bell:"
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(
				"mrkdwn",
				fmt.Sprintf("%s *%s*", emoji, n.Title),
				false,
				false,
			),
			nil,
			nil,
		),
	}

	if n.Message != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", n.Message, false, false),
			nil,
			nil,
		))
	}

	if target, ok := n.Data["target_url"].(string); ok && target != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Target: <%s>", target), false, false),
			nil,
			nil,
		))
	}

	return blocks
}
