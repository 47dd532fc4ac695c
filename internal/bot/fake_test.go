package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"audiolink/internal/activation"
	"audiolink/internal/store"
	"audiolink/internal/transport"
	logx "audiolink/pkg/logx"
)

type fakeAdapter struct {
	mu sync.Mutex

	owner    string
	ownerErr error
	failFor  map[string]error
	// stall makes ReplyLink for the named file wait for its context.
	stall map[string]bool

	responds []transport.CommandReply
	links    []transport.AudioLink
	menus    [][]transport.BotCommand
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }

func (f *fakeAdapter) Stop(context.Context) error { return nil }

func (f *fakeAdapter) IsOwner(_ context.Context, _ string, userID string) (bool, error) {
	if f.ownerErr != nil {
		return false, f.ownerErr
	}
	return userID == f.owner, nil
}

func (f *fakeAdapter) Respond(_ context.Context, _ *transport.Command, r transport.CommandReply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responds = append(f.responds, r)
	return nil
}

func (f *fakeAdapter) ReplyLink(ctx context.Context, _ *transport.Message, link transport.AudioLink) error {
	if err := f.failFor[link.FileName]; err != nil {
		return err
	}
	if f.stall[link.FileName] {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, link)
	return nil
}

func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []transport.BotCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menus = append(f.menus, cmds)
	return nil
}

func (f *fakeAdapter) snapshot() ([]transport.CommandReply, []transport.AudioLink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.CommandReply(nil), f.responds...), append([]transport.AudioLink(nil), f.links...)
}

type fixture struct {
	ad       *fakeAdapter
	ctrl     *activation.Controller
	logs     *store.MemLog
	settings *store.MemSettings
	h        *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, store.NewMemSettings())
}

func newFixtureWith(t *testing.T, settings store.SettingsStore) *fixture {
	t.Helper()
	ad := &fakeAdapter{owner: "owner-1", failFor: map[string]error{}, stall: map[string]bool{}}
	logs := store.NewMemLog()
	ctrl, err := activation.New(context.Background(), settings, nil, logx.Nop())
	if err != nil {
		t.Fatalf("activation.New: %v", err)
	}
	h := New(ad, ctrl, logs, logx.Nop(), Options{ReplyTimeout: time.Second})
	fx := &fixture{ad: ad, ctrl: ctrl, logs: logs, h: h}
	if mem, ok := settings.(*store.MemSettings); ok {
		fx.settings = mem
	}
	return fx
}

// brokenSettings loads fine but refuses every write.
type brokenSettings struct{ err error }

func (b brokenSettings) Get(context.Context) (store.Settings, error) {
	return store.Settings{ID: 1}, nil
}

func (b brokenSettings) Update(context.Context, bool) (store.Settings, error) {
	return store.Settings{}, b.err
}

func (fx *fixture) all(t *testing.T) []store.Record {
	t.Helper()
	recs, err := fx.logs.List(context.Background(), store.DefaultCapacity)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return recs
}

var errSend = errors.New("Missing Permissions")

func audioMessage(atts ...transport.Attachment) *transport.Message {
	return &transport.Message{
		ID:          "m1",
		CommunityID: "g1",
		ChannelID:   "c1",
		UserID:      "u1",
		Username:    "alice",
		Attachments: atts,
	}
}
