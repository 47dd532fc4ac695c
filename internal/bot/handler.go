// Package bot turns platform updates into activation changes, link replies
// and activity log records.
package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"audiolink/internal/activation"
	"audiolink/internal/store"
	"audiolink/internal/transport"
	logx "audiolink/pkg/logx"
)

const (
	defaultReplyTimeout = 10 * time.Second
	defaultFanOut       = 4
	menuTimeout         = 15 * time.Second
)

// Options are the hot-reloadable knobs of a Handler.
type Options struct {
	ReplyTimeout    time.Duration
	ReplyRatePerSec int
	// FanOut bounds concurrent attachment processing within one message.
	FanOut int
}

// Stats are monotonically increasing counters since process start.
type Stats struct {
	AudioDetected uint64 `json:"audioDetected"`
	LinksSent     uint64 `json:"linksSent"`
	ReplyFailures uint64 `json:"replyFailures"`
	Rejected      uint64 `json:"rejected"`
}

// Handler turns platform updates into activation changes, link replies and
// activity log records. It is safe for concurrent use by the dispatch workers.
type Handler struct {
	adapter transport.Adapter
	ctrl    *activation.Controller
	logs    store.LogStore
	log     logx.Logger

	mu   sync.RWMutex
	opts Options

	throttle *throttle

	audioDetected atomic.Uint64
	linksSent     atomic.Uint64
	replyFailures atomic.Uint64
	rejected      atomic.Uint64
}

// New builds a Handler. adapter may be nil when no platform is configured;
// Stats still works and no updates arrive.
func New(adapter transport.Adapter, ctrl *activation.Controller, logs store.LogStore, log logx.Logger, opts Options) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	opts = normalizeOptions(opts)
	return &Handler{
		adapter:  adapter,
		ctrl:     ctrl,
		logs:     logs,
		log:      log.With(logx.String("comp", "bot")),
		opts:     opts,
		throttle: newThrottle(opts.ReplyRatePerSec),
	}
}

func normalizeOptions(o Options) Options {
	if o.ReplyTimeout <= 0 {
		o.ReplyTimeout = defaultReplyTimeout
	}
	if o.FanOut <= 0 {
		o.FanOut = defaultFanOut
	}
	return o
}

// Apply swaps options at runtime.
func (h *Handler) Apply(opts Options) {
	opts = normalizeOptions(opts)
	h.mu.Lock()
	old := h.opts
	h.opts = opts
	h.mu.Unlock()
	if old.ReplyRatePerSec != opts.ReplyRatePerSec {
		h.throttle.SetRate(opts.ReplyRatePerSec)
	}
	h.log.Debug("handler options applied",
		logx.Duration("reply_timeout", opts.ReplyTimeout),
		logx.Int("reply_rate_per_sec", opts.ReplyRatePerSec),
		logx.Int("fan_out", opts.FanOut),
	)
}

func (h *Handler) options() Options {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.opts
}

func (h *Handler) Stats() Stats {
	return Stats{
		AudioDetected: h.audioDetected.Load(),
		LinksSent:     h.linksSent.Load(),
		ReplyFailures: h.replyFailures.Load(),
		Rejected:      h.rejected.Load(),
	}
}

// Handle routes one update. It never returns an error; failures end up in the
// activity log or the process log.
func (h *Handler) Handle(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateReady:
		h.HandleReady(ctx, up.Ready)
	case transport.UpdateCommand:
		h.HandleCommand(ctx, up.Command)
	case transport.UpdateMessage:
		h.HandleMessage(ctx, up.Message)
	case transport.UpdateFailure:
		h.HandleFailure(ctx, up.Failure)
	}
}

// HandleFailure records a platform connection failure. The adapter keeps
// retrying on its own.
func (h *Handler) HandleFailure(ctx context.Context, f *transport.Failure) {
	if f == nil || f.Err == nil {
		return
	}
	h.log.Error("platform connection failed", logx.String("op", f.Op), logx.Err(f.Err))
	h.appendLog(ctx, store.Entry{Type: store.TypeError, Message: InitFailedText(f.Err)})
}

// HandleReady records the startup and registers the command menu.
func (h *Handler) HandleReady(ctx context.Context, r *transport.Ready) {
	name := ""
	if r != nil {
		name = r.BotName
	}
	h.log.Info("bot ready", logx.String("bot", name), logx.String("platform", h.adapter.Name()))
	h.appendLog(ctx, store.Entry{Type: store.TypeAction, Message: msgStarted})

	mu, ok := h.adapter.(transport.CommandMenuUpdater)
	if !ok {
		return
	}
	mctx, cancel := context.WithTimeout(ctx, menuTimeout)
	defer cancel()
	if err := mu.UpdateMenuCommands(mctx, Commands); err != nil {
		h.log.Warn("register commands failed", logx.Err(err))
		return
	}
	h.log.Info("commands registered", logx.Int("count", len(Commands)))
}

// HandleCommand serves /activate and /deactivate. Other names are ignored.
func (h *Handler) HandleCommand(ctx context.Context, cmd *transport.Command) {
	if cmd == nil {
		return
	}
	var active bool
	switch cmd.Name {
	case CmdActivate:
		active = true
	case CmdDeactivate:
		active = false
	default:
		return
	}

	log := h.log.With(
		logx.String("cmd", cmd.Name),
		logx.String("channel_id", cmd.ChannelID),
		logx.String("user_id", cmd.UserID),
	)

	if err := h.authorize(ctx, cmd); err != nil {
		h.rejected.Add(1)
		if !errors.Is(err, ErrNotOwner) {
			log.Warn("owner lookup failed", logx.Err(err))
		} else {
			log.Info("command rejected", logx.Err(err))
		}
		h.respond(ctx, log, cmd, transport.CommandReply{Text: msgNotOwner, Ephemeral: true})
		return
	}

	if _, err := h.ctrl.Set(ctx, active, "command"); err != nil {
		// The flag change stands; surface the divergence in the activity log.
		h.appendLog(ctx, store.Entry{
			Type:      store.TypeError,
			Message:   fmt.Sprintf("Failed to update bot settings: %v", err),
			ChannelID: cmd.ChannelID,
			UserID:    cmd.UserID,
		})
	}

	h.respond(ctx, log, cmd, transport.CommandReply{Text: confirmText(active)})
	h.appendLog(ctx, store.Entry{
		Type:      store.TypeAction,
		Message:   toggledText(active, cmd.ChannelName, cmd.Username),
		ChannelID: cmd.ChannelID,
		UserID:    cmd.UserID,
	})
	log.Info("activation changed by command", logx.Bool("active", active))
}

func (h *Handler) authorize(ctx context.Context, cmd *transport.Command) error {
	if cmd.CommunityID == "" {
		return ErrNotOwner
	}
	ok, err := h.adapter.IsOwner(ctx, cmd.CommunityID, cmd.UserID)
	if err != nil {
		return fmt.Errorf("check owner: %w", err)
	}
	if !ok {
		return ErrNotOwner
	}
	return nil
}

func (h *Handler) respond(ctx context.Context, log logx.Logger, cmd *transport.Command, r transport.CommandReply) {
	rctx, cancel := context.WithTimeout(ctx, h.options().ReplyTimeout)
	defer cancel()
	if err := h.adapter.Respond(rctx, cmd, r); err != nil {
		log.Warn("command reply failed", logx.Err(err))
	}
}

// HandleMessage processes every attachment of msg while the bot is active.
// Attachments are independent: one failing never affects the others.
func (h *Handler) HandleMessage(ctx context.Context, msg *transport.Message) {
	if msg == nil || msg.FromBot || len(msg.Attachments) == 0 {
		return
	}
	if !h.ctrl.IsActive() {
		return
	}

	var g errgroup.Group
	g.SetLimit(h.options().FanOut)
	for _, att := range msg.Attachments {
		g.Go(func() error {
			h.processAttachment(ctx, msg, att)
			return nil
		})
	}
	_ = g.Wait()
}

func (h *Handler) processAttachment(ctx context.Context, msg *transport.Message, att transport.Attachment) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("panic processing attachment",
				logx.String("file", att.FileName),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
			h.appendLog(ctx, store.Entry{
				Type:      store.TypeError,
				Message:   replyFailedText(att.FileName, fmt.Errorf("panic: %v", r)),
				ChannelID: msg.ChannelID,
				UserID:    msg.UserID,
				FileName:  att.FileName,
			})
		}
	}()

	if att.FileName == "" {
		return
	}
	if !IsAudioFile(att.FileName) {
		h.appendLog(ctx, store.Entry{
			Type:      store.TypeError,
			Message:   unsupportedText(att.FileName),
			ChannelID: msg.ChannelID,
			UserID:    msg.UserID,
			FileName:  att.FileName,
		})
		return
	}

	h.audioDetected.Add(1)
	h.appendLog(ctx, store.Entry{
		Type:        store.TypeDetected,
		Message:     detectedText(att.FileName, att.Size),
		ChannelID:   msg.ChannelID,
		UserID:      msg.UserID,
		FileName:    att.FileName,
		FileSize:    store.Size(att.Size),
		DownloadURL: att.URL,
	})

	if err := h.sendLink(ctx, msg, att); err != nil {
		h.replyFailures.Add(1)
		h.log.Warn("link reply failed",
			logx.String("file", att.FileName),
			logx.String("channel_id", msg.ChannelID),
			logx.Err(err),
		)
		h.appendLog(ctx, store.Entry{
			Type:      store.TypeError,
			Message:   replyFailedText(att.FileName, err),
			ChannelID: msg.ChannelID,
			UserID:    msg.UserID,
			FileName:  att.FileName,
		})
		return
	}

	h.linksSent.Add(1)
	h.appendLog(ctx, store.Entry{
		Type:        store.TypeAction,
		Message:     respondedText(att.FileName),
		ChannelID:   msg.ChannelID,
		UserID:      msg.UserID,
		FileName:    att.FileName,
		DownloadURL: att.URL,
	})
}

func (h *Handler) sendLink(ctx context.Context, msg *transport.Message, att transport.Attachment) error {
	rctx, cancel := context.WithTimeout(ctx, h.options().ReplyTimeout)
	defer cancel()
	if err := h.throttle.Wait(rctx, msg.ChannelID); err != nil {
		return fmt.Errorf("throttled: %w", err)
	}
	return h.adapter.ReplyLink(rctx, msg, transport.AudioLink{
		FileName: att.FileName,
		URL:      att.URL,
		Size:     att.Size,
	})
}

// appendLog writes a record; a failing store is reported in the process log only.
func (h *Handler) appendLog(ctx context.Context, e store.Entry) {
	if h.logs == nil {
		return
	}
	if _, err := h.logs.Append(ctx, e); err != nil {
		h.log.Warn("activity log append failed",
			logx.String("type", string(e.Type)),
			logx.Err(err),
		)
	}
}
