package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

func toMessage(m *discordgo.MessageCreate) Message {
	msg := Message{AuthorID: m.Author.ID, ChannelID: m.ChannelID, Content: m.Content}
	for _, a := range m.Attachments {
		if a != nil && a.URL != "" {
			msg.Attachments = append(msg.Attachments, a.URL)
		}
	}
	return msg
}

// Run connects to the Discord gateway and answers commands until ctx is
// cancelled.
func (b *Bot) Run(ctx context.Context, token string) error {
	sess, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	sess.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		b.log.Info("discord connected", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	sess.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		cmdCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		reply := b.Handle(cmdCtx, toMessage(m))
		if reply == "" {
			return
		}
		if _, err := s.ChannelMessageSendReply(m.ChannelID, reply, m.Reference()); err != nil {
			b.log.Warn("discord reply failed", "channel_id", m.ChannelID, "err", err)
		}
	})

	if err := sess.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	defer sess.Close()

	<-ctx.Done()
	b.log.Info("discord bot shutdown")
	return nil
}
