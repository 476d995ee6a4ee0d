package events

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// messageSender is the slice of the Discord session the sink needs.
type messageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSink announces noteworthy events (badge unlocks, completed trades)
// in a Discord channel. Case opens and sales are too chatty to announce and
// are skipped.
type DiscordSink struct {
	session   messageSender
	channelID string
}

// NewDiscordSink creates a sink posting to the given announcement channel.
func NewDiscordSink(token, channelID string) (*DiscordSink, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("error opening Discord session: %w", err)
	}

	return &DiscordSink{session: session, channelID: channelID}, nil
}

// Publish posts an announcement for unlock and trade events.
func (s *DiscordSink) Publish(ctx context.Context, event Event) error {
	var content string
	switch e := event.(type) {
	case BadgeUnlocked:
		content = fmt.Sprintf("🏅 <@%s> unlocked the **%s** badge!", e.PlayerID, e.BadgeCode)
	case TradeCompleted:
		content = fmt.Sprintf("🤝 Trade between <@%s> and <@%s> completed.", e.InitiatorID, e.TargetID)
	default:
		return nil
	}

	if _, err := s.session.ChannelMessageSend(s.channelID, content); err != nil {
		return fmt.Errorf("error sending Discord announcement: %w", err)
	}
	return nil
}
