package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ganger/internal/gang"
)

func TestParseWebhookURL(t *testing.T) {
	id, token, err := parseWebhookURL("https://discord.com/api/webhooks/1234/abcd-efg")
	require.NoError(t, err)
	assert.Equal(t, "1234", id)
	assert.Equal(t, "abcd-efg", token)

	_, _, err = parseWebhookURL("https://discord.com/api/channels/1234")
	assert.Error(t, err)
	_, _, err = parseWebhookURL("https://discord.com/api/webhooks/1234/")
	assert.Error(t, err)
}

func TestLogEmbed(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := logEmbed(gang.LogEntry{
		GangID:      "g1",
		ActionType:  "sell_vehicle",
		Description: `Sold vehicle "Wolf" for 40 credits. Credits: 60 → 100.`,
		CreatedAt:   at,
	})
	assert.Equal(t, "sell vehicle", e.Title)
	assert.Equal(t, colorCredits, e.Color)
	assert.Equal(t, "2026-03-01T12:00:00Z", e.Timestamp)
	assert.Equal(t, "gang g1", e.Footer.Text)

	assert.Equal(t, colorRoster, logEmbed(gang.LogEntry{Description: `"Rook" XP: 1 → 2.`}).Color)
}

func TestGangLoggedPostsWebhook(t *testing.T) {
	var got discordgo.WebhookParams
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/webhooks/42/secret", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	prev := discordgo.EndpointWebhooks
	discordgo.EndpointWebhooks = srv.URL + "/webhooks/"
	defer func() { discordgo.EndpointWebhooks = prev }()

	d, err := NewDiscord("https://discord.com/api/webhooks/42/secret")
	require.NoError(t, err)
	err = d.GangLogged(context.Background(), gang.LogEntry{GangID: "g1", ActionType: "hire_fighter", Description: "Hired \"Rook\"."})
	require.NoError(t, err)
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "hire fighter", got.Embeds[0].Title)
	assert.Equal(t, "ganger", got.Username)
}
