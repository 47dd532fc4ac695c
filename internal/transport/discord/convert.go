package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"audiolink/internal/transport"
)

const (
	embedColor  = 0x7289DA
	embedTitle  = "🎵 Audio File Detected"
	embedFooter = "Audio Link Bot"
)

func commandFromInteraction(s *session, i *discordgo.InteractionCreate) *transport.Command {
	if i == nil || i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand {
		return nil
	}
	data := i.ApplicationCommandData()
	cmd := &transport.Command{
		Name:        data.Name,
		CommunityID: i.GuildID,
		ChannelID:   i.ChannelID,
		Ref:         i.Interaction,
	}
	if u := interactionUser(i.Interaction); u != nil {
		cmd.UserID = u.ID
		cmd.Username = u.Username
	}
	if s != nil {
		cmd.ChannelName = s.channelName(i.ChannelID)
	}
	return cmd
}

func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func messageFromCreate(m *discordgo.MessageCreate) *transport.Message {
	if m == nil || m.Message == nil || m.Author == nil {
		return nil
	}
	msg := &transport.Message{
		ID:          m.ID,
		CommunityID: m.GuildID,
		ChannelID:   m.ChannelID,
		UserID:      m.Author.ID,
		Username:    m.Author.Username,
		FromBot:     m.Author.Bot,
		Ref:         m.Message,
	}
	for _, att := range m.Attachments {
		if att == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, transport.Attachment{
			ID:       att.ID,
			FileName: att.Filename,
			Size:     int64(att.Size),
			URL:      att.URL,
		})
	}
	return msg
}

// LinkEmbed is the reply for a detected audio file: the URL once in a code
// block for desktop clients and once plain for long-press copy on mobile.
func LinkEmbed(link transport.AudioLink, now time.Time) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       embedTitle,
		Description: "**File name:** " + link.FileName + "\n📥 **Link:**",
		Color:       embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "***FOR PC***", Value: "```" + link.URL + "```"},
			{Name: "***FOR MOBILE (HOLD TO COPY):***", Value: link.URL},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: embedFooter},
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}
