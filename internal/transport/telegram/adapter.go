// Package telegram adapts a telebot long-poll bot to transport.Adapter.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"html"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "audiolink/internal/runtime/supervisor"
	"audiolink/internal/transport"
	logx "audiolink/pkg/logx"
)

const platform = "telegram"

type Config struct {
	Token       string
	PollTimeout time.Duration
	// EphemeralTTL is how long a private-looking reply stays before it is
	// deleted. Telegram has no per-user visibility.
	EphemeralTTL time.Duration
	// PublicURL is the externally reachable base of the HTTP server; file
	// links point at its /files proxy so the bot token never leaves the host.
	PublicURL string
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot    *tele.Bot
	outbox transport.Outbox

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	menuMu   sync.Mutex
	menuHash uint64

	files *seenFiles
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  strings.TrimSpace(cfg.Token),
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg.PublicURL = strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/")
	a := &Adapter{
		cfg:   cfg,
		log:   log.With(logx.String("comp", "telegram.adapter")),
		bot:   b,
		files: newSeenFiles(maxSeenFiles),
	}
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) Name() string { return platform }

func (a *Adapter) registerHandlers() {
	for _, name := range []string{"activate", "deactivate"} {
		name := name
		a.bot.Handle("/"+name, func(c tele.Context) error {
			if cmd := commandFromMessage(name, c.Message()); cmd != nil {
				a.outbox.Send(transport.Update{Kind: transport.UpdateCommand, Command: cmd})
			}
			return nil
		})
	}

	onFile := func(c tele.Context) error {
		if msg := a.messageFromTele(c.Message()); msg != nil {
			a.outbox.Send(transport.Update{Kind: transport.UpdateMessage, Message: msg})
		}
		return nil
	}
	a.bot.Handle(tele.OnDocument, onFile)
	a.bot.Handle(tele.OnAudio, onFile)
	a.bot.Handle(tele.OnVideo, onFile)
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
		// adapter errors should not take down the whole app
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		a.outbox.ReportLoop(c, a.log, 5*time.Second)
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// Telebot's Start() blocks until Stop(); restart it if it ever returns early.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)

	name := ""
	if a.bot.Me != nil {
		name = a.bot.Me.Username
	}
	a.outbox.Send(transport.Update{Kind: transport.UpdateReady, Ready: &transport.Ready{BotName: name}})
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
		a.log.Debug("telegram stop called but not running")
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_updates", a.outbox.Dropped()))
	if sup != nil {
		sup.Cancel()
	}
	// telebot Stop is expected to be fast; run it async just in case.
	go a.bot.Stop()

	if sup == nil {
		return nil
	}
	// Keep shutdown snappy even if getUpdates long-poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		if sup.Context().Err() == nil {
			a.log.Warn("telegram stop error", logx.Err(err))
		}
	}
	return nil
}

// IsOwner reports whether userID is the creator of the group chat.
func (a *Adapter) IsOwner(ctx context.Context, chatID, userID string) (bool, error) {
	cid, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("chat id %q: %w", chatID, err)
	}
	uid, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("user id %q: %w", userID, err)
	}
	var member *tele.ChatMember
	err = transport.CallContext(ctx, func() error {
		var e error
		member, e = a.bot.ChatMemberOf(&tele.Chat{ID: cid}, &tele.User{ID: uid})
		return e
	})
	if err != nil {
		return false, wrap("chat member", err)
	}
	return member != nil && member.Role == tele.Creator, nil
}

func (a *Adapter) Respond(ctx context.Context, cmd *transport.Command, r transport.CommandReply) error {
	m, ok := cmd.Ref.(*tele.Message)
	if !ok || m == nil {
		return wrap("respond", errors.New("command has no message"))
	}
	var sent *tele.Message
	err := transport.CallContext(ctx, func() error {
		var e error
		sent, e = a.bot.Reply(m, r.Text)
		return e
	})
	if err != nil {
		return wrap("respond", err)
	}
	if r.Ephemeral && a.cfg.EphemeralTTL > 0 && sent != nil {
		time.AfterFunc(a.cfg.EphemeralTTL, func() {
			if err := a.bot.Delete(sent); err != nil {
				a.log.Debug("ephemeral reply delete failed", logx.Err(err))
			}
		})
	}
	return nil
}

func (a *Adapter) ReplyLink(ctx context.Context, msg *transport.Message, link transport.AudioLink) error {
	m, ok := msg.Ref.(*tele.Message)
	if !ok || m == nil {
		return wrap("reply", errors.New("message has no reference"))
	}
	err := transport.CallContext(ctx, func() error {
		_, e := a.bot.Reply(m, LinkText(link), &tele.SendOptions{
			ParseMode:             tele.ModeHTML,
			DisableWebPagePreview: true,
		})
		return e
	})
	return wrap("reply", err)
}

// FetchFile streams a Telegram-hosted file for the HTTP proxy. Ids that did
// not come through messageFromTele are refused.
func (a *Adapter) FetchFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	if fileID == "" {
		return nil, errors.New("empty file id")
	}
	if !a.files.Has(fileID) {
		return nil, fmt.Errorf("%w: %s", transport.ErrUnknownFile, fileID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := a.bot.File(&tele.File{FileID: fileID})
	if err != nil {
		return nil, wrap("file", err)
	}
	return rc, nil
}

// UpdateMenuCommands sets the bot command list; it only calls Telegram when
// the list changed since the last successful call.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []transport.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	for _, c := range cmds {
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}

	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > 256 {
			d = d[:256]
		}
		out = append(out, tele.Command{Text: c.Command, Description: d})
	}
	if err := transport.CallContext(ctx, func() error { return a.bot.SetCommands(out) }); err != nil {
		return wrap("set commands", err)
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(out)))
	return nil
}

func (a *Adapter) messageFromTele(m *tele.Message) *transport.Message {
	if m == nil || m.Chat == nil {
		return nil
	}
	msg := &transport.Message{
		ID:        strconv.Itoa(m.ID),
		ChannelID: strconv.FormatInt(m.Chat.ID, 10),
		Ref:       m,
	}
	if isCommunity(m.Chat) {
		msg.CommunityID = msg.ChannelID
	}
	if m.Sender != nil {
		msg.UserID = strconv.FormatInt(m.Sender.ID, 10)
		msg.Username = m.Sender.Username
		msg.FromBot = m.Sender.IsBot
	}
	if att, ok := a.attachment(m); ok {
		msg.Attachments = []transport.Attachment{att}
	}
	return msg
}

func (a *Adapter) attachment(m *tele.Message) (transport.Attachment, bool) {
	var (
		f    tele.File
		name string
	)
	switch {
	case m.Document != nil:
		f, name = m.Document.File, m.Document.FileName
	case m.Audio != nil:
		f, name = m.Audio.File, m.Audio.FileName
	case m.Video != nil:
		f, name = m.Video.File, m.Video.FileName
	default:
		return transport.Attachment{}, false
	}
	a.files.Add(f.FileID)
	return transport.Attachment{
		ID:       f.FileID,
		FileName: name,
		Size:     int64(f.FileSize),
		URL:      FileURL(a.cfg.PublicURL, f.FileID, name),
	}, true
}

func commandFromMessage(name string, m *tele.Message) *transport.Command {
	if m == nil || m.Chat == nil {
		return nil
	}
	cmd := &transport.Command{
		Name:        name,
		ChannelID:   strconv.FormatInt(m.Chat.ID, 10),
		ChannelName: chatName(m.Chat),
		Ref:         m,
	}
	if isCommunity(m.Chat) {
		cmd.CommunityID = cmd.ChannelID
	}
	if m.Sender != nil {
		cmd.UserID = strconv.FormatInt(m.Sender.ID, 10)
		cmd.Username = m.Sender.Username
		if cmd.Username == "" {
			cmd.Username = m.Sender.FirstName
		}
	}
	return cmd
}

func isCommunity(c *tele.Chat) bool {
	switch c.Type {
	case tele.ChatGroup, tele.ChatSuperGroup, tele.ChatChannel:
		return true
	}
	return false
}

func chatName(c *tele.Chat) string {
	if c.Title != "" {
		return c.Title
	}
	return c.Username
}

// FileURL builds the proxy link for a Telegram file id.
func FileURL(base, fileID, name string) string {
	if name == "" {
		name = "file"
	}
	return base + "/files/" + url.PathEscape(fileID) + "/" + url.PathEscape(name)
}

// LinkText is the HTML reply for a detected audio file.
func LinkText(link transport.AudioLink) string {
	u := html.EscapeString(link.URL)
	var b strings.Builder
	b.WriteString("🎵 <b>Audio File Detected</b>\n")
	b.WriteString("<b>File name:</b> " + html.EscapeString(link.FileName) + "\n")
	b.WriteString("📥 <b>Link:</b>\n\n")
	b.WriteString("<b><i>FOR PC</i></b>\n<code>" + u + "</code>\n\n")
	b.WriteString("<b><i>FOR MOBILE (HOLD TO COPY):</i></b>\n" + u)
	return b.String()
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &transport.SendError{Platform: platform, Op: op, Err: err}
}
