// Package transport is the narrow boundary between the bot logic and a
// concrete chat platform client. Adapters turn platform events into Updates
// and expose the few outbound calls the bot needs.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
)

type UpdateKind string

const (
	UpdateReady   UpdateKind = "ready"
	UpdateCommand UpdateKind = "command"
	UpdateMessage UpdateKind = "message"
	UpdateFailure UpdateKind = "failure"
)

type Update struct {
	Kind    UpdateKind
	Ready   *Ready
	Command *Command
	Message *Message
	Failure *Failure
}

// Ready is emitted once the adapter is connected.
type Ready struct {
	BotName string
}

// Failure reports that the platform connection could not be established.
// Adapters send it once per failure streak while they keep retrying.
type Failure struct {
	Op  string
	Err error
}

// Command is a slash-style command invocation.
type Command struct {
	Name string

	// CommunityID is the guild (Discord) or group chat (Telegram);
	// empty when the command was sent outside a community.
	CommunityID string
	ChannelID   string
	ChannelName string
	UserID      string
	Username    string

	// Ref is the adapter-specific handle needed to answer the command.
	Ref any
}

type Attachment struct {
	ID       string
	FileName string
	Size     int64
	URL      string
}

// Message is an inbound chat message. Only attachments matter here.
type Message struct {
	ID          string
	CommunityID string
	ChannelID   string
	UserID      string
	Username    string
	FromBot     bool
	Attachments []Attachment

	Ref any
}

// CommandReply answers a Command. Ephemeral replies are visible only to the
// invoker where the platform supports it.
type CommandReply struct {
	Text      string
	Ephemeral bool
}

// AudioLink is the reply sent for a detected audio attachment.
type AudioLink struct {
	FileName string
	URL      string
	Size     int64
}

type Adapter interface {
	Name() string
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// IsOwner reports whether userID owns the community.
	IsOwner(ctx context.Context, communityID, userID string) (bool, error)
	Respond(ctx context.Context, cmd *Command, r CommandReply) error
	ReplyLink(ctx context.Context, msg *Message, link AudioLink) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that register commands with
// the platform (Discord application commands, Telegram setMyCommands).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

// ErrUnknownFile is returned by FetchFile for ids the adapter never linked.
var ErrUnknownFile = errors.New("unknown file")

// FileFetcher is implemented by adapters whose attachment links are proxied
// through the HTTP server instead of pointing at the platform directly.
// Only ids the adapter itself handed out are served.
type FileFetcher interface {
	FetchFile(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// Connected is implemented by adapters that can report link state.
type Connected interface {
	Connected() bool
}

// SendError wraps a failed outbound platform call.
type SendError struct {
	Platform string
	Op       string
	Err      error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Platform, e.Op, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// CallContext runs fn and returns early if ctx ends first. fn keeps running in
// the background in that case; it is meant for client calls that take no context.
func CallContext(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
