package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/vascofialho-nl/releasecheck/logger"
	"github.com/vascofialho-nl/releasecheck/models"
)

var _ Notifier = (*Discord)(nil)

const (
	commandPrefix  = "!"
	commandTimeout = 15 * time.Second
)

// sender is the part of *discordgo.Session used to post messages.
type sender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts update announcements to a channel and answers "!release"
// in that channel.
type Discord struct {
	session       *discordgo.Session
	sender        sender
	channel       string
	slug          string
	describer     Describer
	logger        logger.Logger
	removeHandler func()
}

type Params struct {
	Config Config
	// Slug is the repository slug answered by the "!release" command.
	Slug      string
	Describer Describer
	Logger    logger.Logger
}

func NewDiscord(p Params) (*Discord, error) {
	cfg := p.Config

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	log := p.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return &Discord{
		session:   session,
		sender:    session,
		channel:   cfg.Channel,
		slug:      p.Slug,
		describer: p.Describer,
		logger:    log,
	}, nil
}

func (d *Discord) Start(ctx context.Context) error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("open discord connection: %w", err)
	}
	if d.describer != nil {
		d.removeHandler = d.session.AddHandler(d.handleMessage)
	}
	d.logger.InfoW("discord notifier started", "channel", d.channel)
	return nil
}

func (d *Discord) Stop() {
	if d.removeHandler != nil {
		d.removeHandler()
		d.removeHandler = nil
	}
	if d.session != nil {
		_ = d.session.Close()
	}
}

func (d *Discord) Notify(_ context.Context, desc models.UpdateDescriptor) error {
	return d.WriteMessage(d.channel, FormatUpdate(desc))
}

func (d *Discord) WriteMessage(channelID, msg string) error {
	if d.sender == nil {
		return errors.New("discord session is nil")
	}
	_, err := d.sender.ChannelMessageSend(channelID, msg)
	return err
}

func (d *Discord) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.ChannelID != d.channel {
		return
	}
	reply, ok := d.reply(m.Content)
	if !ok {
		return
	}
	if err := d.WriteMessage(m.ChannelID, reply); err != nil {
		d.logger.ErrorW("failed to reply", "channel", m.ChannelID, "error", err)
	}
}

func (d *Discord) reply(content string) (string, bool) {
	fields := strings.Fields(strings.TrimSpace(content))
	if len(fields) == 0 || fields[0] != commandPrefix+"release" {
		return "", false
	}
	slug := d.slug
	if len(fields) > 1 {
		slug = fields[1]
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	info, ok := d.describer.DescribeRelease(ctx, slug)
	if !ok {
		return fmt.Sprintf("No release information for `%s`.", slug), true
	}
	return FormatRelease(*info), true
}

// FormatUpdate renders an update announcement.
func FormatUpdate(d models.UpdateDescriptor) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s** %s is available\n", d.Plugin, d.NewVersion)
	fmt.Fprintf(&sb, "Download: <%s>\n", d.Package)
	fmt.Fprintf(&sb, "Repository: <%s>", d.URL)
	return sb.String()
}

// FormatRelease renders release metadata for the "!release" command.
func FormatRelease(info models.ReleaseInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s** %s\n", info.Name, info.Version)
	fmt.Fprintf(&sb, "Download: <%s>\n", info.DownloadLink)
	fmt.Fprintf(&sb, "Homepage: <%s>", info.Homepage)
	return sb.String()
}
