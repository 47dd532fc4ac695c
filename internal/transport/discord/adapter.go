// Package discord adapts a discordgo gateway session to transport.Adapter.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	rtsup "audiolink/internal/runtime/supervisor"
	"audiolink/internal/transport"
	logx "audiolink/pkg/logx"
)

const platform = "discord"

// Intents needed to see guild messages and their attachments.
const Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent

type Config struct {
	Token string
	// ApplicationID is used for command registration; the logged-in user id
	// is used when empty.
	ApplicationID string
}

type Adapter struct {
	cfg Config
	log logx.Logger

	s      *session
	outbox transport.Outbox

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	connected atomic.Bool
	appID     atomic.Value // string

	// open dials the gateway; replaced in tests.
	open func() error
	// failing is set after a failed open has been reported and cleared by
	// the next successful one.
	failing atomic.Bool

	removers []func()
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	dg.Identify.Intents = Intents
	dg.StateEnabled = true
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log.With(logx.String("comp", "discord.adapter")), s: &session{dg}, open: dg.Open}
	a.appID.Store(strings.TrimSpace(cfg.ApplicationID))
	a.registerHandlers(dg)
	return a, nil
}

func (a *Adapter) Name() string { return platform }

func (a *Adapter) Connected() bool { return a.connected.Load() }

func (a *Adapter) registerHandlers(dg *discordgo.Session) {
	a.removers = append(a.removers,
		dg.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			a.connected.Store(true)
			if a.appID.Load().(string) == "" {
				if r.Application != nil && r.Application.ID != "" {
					a.appID.Store(r.Application.ID)
				} else if r.User != nil {
					a.appID.Store(r.User.ID)
				}
			}
			name := ""
			if r.User != nil {
				name = r.User.Username
			}
			a.log.Info("gateway ready", logx.String("user", name), logx.Int("guilds", len(r.Guilds)))
			a.outbox.Send(transport.Update{Kind: transport.UpdateReady, Ready: &transport.Ready{BotName: name}})
		}),
		dg.AddHandler(func(_ *discordgo.Session, _ *discordgo.Connect) {
			a.connected.Store(true)
		}),
		dg.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
			a.connected.Store(false)
			a.log.Warn("gateway disconnected")
		}),
		dg.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
			if cmd := commandFromInteraction(a.s, i); cmd != nil {
				a.outbox.Send(transport.Update{Kind: transport.UpdateCommand, Command: cmd})
			}
		}),
		dg.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			if msg := messageFromCreate(m); msg != nil {
				a.outbox.Send(transport.Update{Kind: transport.UpdateMessage, Message: msg})
			}
		}),
	)
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.outbox.Set(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		a.outbox.ReportLoop(c, a.log, 5*time.Second)
	})

	// discordgo reconnects by itself once Open succeeds; the restart loop only
	// covers the initial handshake (bad network, gateway outage).
	sup.GoRestart("gateway", func(c context.Context) error {
		if err := a.open(); err != nil && !errors.Is(err, discordgo.ErrWSAlreadyOpen) {
			err = fmt.Errorf("open gateway: %w", err)
			if !a.failing.Swap(true) {
				a.outbox.Send(transport.Update{Kind: transport.UpdateFailure, Failure: &transport.Failure{Op: "connect", Err: err}})
			}
			return err
		}
		a.failing.Store(false)
		a.log.Info("gateway connected")
		<-c.Done()
		return nil
	},
		rtsup.WithRestartBackoff(time.Second, time.Minute),
		rtsup.WithPublishFirstError(true),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	a.outbox.Set(nil)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_updates", a.outbox.Dropped()))
	if sup != nil {
		sup.Cancel()
	}
	for _, rm := range a.removers {
		rm()
	}
	a.removers = nil

	err := a.s.dg.Close()
	a.connected.Store(false)
	if err != nil {
		a.log.Warn("gateway close failed", logx.Err(err))
	}

	if sup == nil {
		return nil
	}
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil && sup.Context().Err() == nil {
		a.log.Warn("discord stop error", logx.Err(err))
	}
	return nil
}

// IsOwner compares userID to the guild owner, preferring the state cache.
func (a *Adapter) IsOwner(ctx context.Context, guildID, userID string) (bool, error) {
	if guildID == "" {
		return false, nil
	}
	g, err := a.s.guild(ctx, guildID)
	if err != nil {
		return false, wrap("guild", err)
	}
	return g.OwnerID != "" && g.OwnerID == userID, nil
}

func (a *Adapter) Respond(ctx context.Context, cmd *transport.Command, r transport.CommandReply) error {
	i, ok := cmd.Ref.(*discordgo.Interaction)
	if !ok || i == nil {
		return wrap("respond", errors.New("command has no interaction"))
	}
	data := &discordgo.InteractionResponseData{Content: r.Text}
	if r.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := a.s.dg.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(ctx))
	return wrap("respond", err)
}

// ReplyLink answers the original message with the link embed.
func (a *Adapter) ReplyLink(ctx context.Context, msg *transport.Message, link transport.AudioLink) error {
	send := &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{LinkEmbed(link, time.Now())},
		Reference: &discordgo.MessageReference{
			MessageID: msg.ID,
			ChannelID: msg.ChannelID,
			GuildID:   msg.CommunityID,
		},
	}
	_, err := a.s.dg.ChannelMessageSendComplex(msg.ChannelID, send, discordgo.WithContext(ctx))
	return wrap("reply", err)
}

// UpdateMenuCommands overwrites the global application commands.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []transport.BotCommand) error {
	appID, _ := a.appID.Load().(string)
	if appID == "" {
		return wrap("register commands", errors.New("application id unknown"))
	}
	_, err := a.s.dg.ApplicationCommandBulkOverwrite(appID, "", ApplicationCommands(cmds), discordgo.WithContext(ctx))
	if err != nil {
		return wrap("register commands", err)
	}
	a.log.Info("application commands registered", logx.Int("count", len(cmds)), logx.String("app_id", appID))
	return nil
}

// ApplicationCommands maps menu entries to global chat-input commands.
func ApplicationCommands(cmds []transport.BotCommand) []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > 100 {
			d = d[:100]
		}
		out = append(out, &discordgo.ApplicationCommand{
			Name:        c.Command,
			Description: d,
			Type:        discordgo.ChatApplicationCommand,
		})
	}
	return out
}

// wrap turns a discordgo error into a transport.SendError carrying the API's
// own message ("Missing Permissions") when there is one.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Message != nil && rest.Message.Message != "" {
		err = errors.New(rest.Message.Message)
	}
	return &transport.SendError{Platform: platform, Op: op, Err: err}
}
