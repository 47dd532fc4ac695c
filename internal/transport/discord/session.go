package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
)

const lookupTimeout = 5 * time.Second

// session adds cache-first lookups on top of the gateway session.
type session struct {
	dg *discordgo.Session
}

func (s *session) guild(ctx context.Context, id string) (*discordgo.Guild, error) {
	if s.dg.State != nil {
		if g, err := s.dg.State.Guild(id); err == nil && g.OwnerID != "" {
			return g, nil
		}
	}
	return s.dg.Guild(id, discordgo.WithContext(ctx))
}

// channelName returns "" when the channel cannot be resolved.
func (s *session) channelName(id string) string {
	if id == "" {
		return ""
	}
	if s.dg.State != nil {
		if ch, err := s.dg.State.Channel(id); err == nil {
			return ch.Name
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	ch, err := s.dg.Channel(id, discordgo.WithContext(ctx))
	if err != nil {
		return ""
	}
	return ch.Name
}
