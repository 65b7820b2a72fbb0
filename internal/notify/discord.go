// Package notify posts committed gang log lines to a Discord channel webhook.
package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"ganger/internal/gang"
)

const (
	colorCredits = 0xE0A526
	colorRoster  = 0x5865F2
)

type Discord struct {
	session *discordgo.Session
	id      string
	token   string
}

// NewDiscord parses a webhook URL of the form
// https://discord.com/api/webhooks/<id>/<token>.
func NewDiscord(webhookURL string) (*Discord, error) {
	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	s, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Client.Timeout = 10 * time.Second
	return &Discord{session: s, id: id, token: token}, nil
}

func (d *Discord) GangLogged(ctx context.Context, entry gang.LogEntry) error {
	_, err := d.session.WebhookExecute(d.id, d.token, false, &discordgo.WebhookParams{
		Username: "ganger",
		Embeds:   []*discordgo.MessageEmbed{logEmbed(entry)},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	return nil
}

func logEmbed(entry gang.LogEntry) *discordgo.MessageEmbed {
	color := colorRoster
	if strings.Contains(entry.Description, "Credits:") {
		color = colorCredits
	}
	ts := entry.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return &discordgo.MessageEmbed{
		Title:       strings.ReplaceAll(entry.ActionType, "_", " "),
		Description: entry.Description,
		Color:       color,
		Timestamp:   ts.UTC().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: "gang " + entry.GangID,
		},
	}
}

func parseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("parse webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("webhook url %q has no /webhooks/<id>/<token> path", raw)
}
