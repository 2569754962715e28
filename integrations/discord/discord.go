// Package discord posts operator alerts to a Discord channel webhook.
package discord

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const maxContent = 2000

type Notifier struct {
	session  *discordgo.Session
	username string
}

func NewNotifier(username string) (*Notifier, error) {
	// Webhook execution is authenticated by the webhook token alone.
	sess, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("could not create Discord session: %w", err)
	}
	return &Notifier{session: sess, username: username}, nil
}

// ParseWebhookURL extracts the id and token from https://discord.com/api/webhooks/<id>/<token>.
func ParseWebhookURL(webhookURL string) (id string, token string, err error) {
	u, err := url.Parse(webhookURL)
	if err != nil {
		return "", "", err
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("not a Discord webhook URL")
}

func (n *Notifier) SendAlert(ctx context.Context, webhookURL string, content string) error {
	id, token, err := ParseWebhookURL(webhookURL)
	if err != nil {
		return err
	}
	if len(content) > maxContent {
		content = content[:maxContent-3] + "..."
	}
	_, err = n.session.WebhookExecute(id, token, false, &discordgo.WebhookParams{
		Content:  content,
		Username: n.username,
	}, discordgo.WithContext(ctx))
	return err
}
