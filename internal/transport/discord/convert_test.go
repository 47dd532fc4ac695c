package discord

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"

	"audiolink/internal/transport"
	logx "audiolink/pkg/logx"
)

func TestMessageFromCreate(t *testing.T) {
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		GuildID:   "g1",
		ChannelID: "c1",
		Author:    &discordgo.User{ID: "u1", Username: "alice"},
		Attachments: []*discordgo.MessageAttachment{
			{ID: "a1", Filename: "song.mp3", Size: 2097152, URL: "https://cdn.discordapp.com/a1/song.mp3"},
			nil,
			{ID: "a2", Filename: "notes.txt", Size: 12, URL: "https://cdn.discordapp.com/a2/notes.txt"},
		},
	}}

	got := messageFromCreate(m)
	want := []transport.Attachment{
		{ID: "a1", FileName: "song.mp3", Size: 2097152, URL: "https://cdn.discordapp.com/a1/song.mp3"},
		{ID: "a2", FileName: "notes.txt", Size: 12, URL: "https://cdn.discordapp.com/a2/notes.txt"},
	}
	if diff := cmp.Diff(want, got.Attachments); diff != "" {
		t.Fatalf("attachments mismatch (-want +got):\n%s", diff)
	}
	if got.FromBot || got.UserID != "u1" || got.CommunityID != "g1" || got.ChannelID != "c1" {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestMessageFromBotAuthor(t *testing.T) {
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:     "m1",
		Author: &discordgo.User{ID: "b1", Bot: true},
	}}
	if got := messageFromCreate(m); got == nil || !got.FromBot {
		t.Fatalf("bot author not flagged: %+v", got)
	}
	if messageFromCreate(&discordgo.MessageCreate{Message: &discordgo.Message{}}) != nil {
		t.Fatal("message without author must be ignored")
	}
}

func TestCommandFromInteraction(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "g1",
		ChannelID: "c1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "u1", Username: "owner"}},
		Data:      discordgo.ApplicationCommandInteractionData{Name: "activate"},
	}}

	cmd := commandFromInteraction(nil, i)
	if cmd == nil {
		t.Fatal("expected a command")
	}
	if cmd.Name != "activate" || cmd.UserID != "u1" || cmd.Username != "owner" || cmd.CommunityID != "g1" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	if cmd.Ref != i.Interaction {
		t.Fatal("command must carry the interaction for the reply")
	}

	dm := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
		User: &discordgo.User{ID: "u2", Username: "dm"},
		Data: discordgo.ApplicationCommandInteractionData{Name: "deactivate"},
	}}
	if cmd := commandFromInteraction(nil, dm); cmd == nil || cmd.UserID != "u2" || cmd.CommunityID != "" {
		t.Fatalf("unexpected DM command: %+v", cmd)
	}

	ping := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Type: discordgo.InteractionPing}}
	if commandFromInteraction(nil, ping) != nil {
		t.Fatal("non-command interaction must be ignored")
	}
}

func TestLinkEmbed(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e := LinkEmbed(transport.AudioLink{FileName: "song.mp3", URL: "https://x/song.mp3"}, now)

	if e.Title != "🎵 Audio File Detected" || e.Color != 0x7289DA {
		t.Fatalf("unexpected header: %q %x", e.Title, e.Color)
	}
	if e.Description != "**File name:** song.mp3\n📥 **Link:**" {
		t.Fatalf("unexpected description %q", e.Description)
	}
	if len(e.Fields) != 2 || e.Fields[0].Value != "```https://x/song.mp3```" || e.Fields[1].Value != "https://x/song.mp3" {
		t.Fatalf("unexpected fields: %+v", e.Fields)
	}
	if e.Footer == nil || e.Footer.Text != "Audio Link Bot" || e.Timestamp != "2024-05-01T12:00:00Z" {
		t.Fatalf("unexpected footer/timestamp: %+v %q", e.Footer, e.Timestamp)
	}
}

func TestApplicationCommands(t *testing.T) {
	got := ApplicationCommands([]transport.BotCommand{
		{Command: "activate", Description: "on"},
		{Command: ""},
		{Command: "deactivate"},
	})
	if len(got) != 2 {
		t.Fatalf("want 2 commands, got %d", len(got))
	}
	if got[1].Description != "deactivate" || got[0].Type != discordgo.ChatApplicationCommand {
		t.Fatalf("unexpected commands: %+v %+v", got[0], got[1])
	}
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}
