package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	rtsup "audiolink/internal/runtime/supervisor"
	logx "audiolink/pkg/logx"
)

// maxListenRestarts bounds how often a failing listener is retried before the
// dashboard is reported as failed.
const maxListenRestarts = 5

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Service runs the HTTP server under a restart loop.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	handler http.Handler
	log     logx.Logger

	ln  net.Listener
	srv *http.Server
	sup *rtsup.Supervisor

	ready chan struct{}

	backoffMin, backoffMax time.Duration
	restarts               int

	failOnce sync.Once
	failed   chan struct{}
	failErr  error
}

func NewService(cfg Config, handler http.Handler, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = ":5000"
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}
	return &Service{
		cfg:        cfg,
		handler:    handler,
		log:        log.With(logx.String("comp", "http")),
		ready:      make(chan struct{}),
		backoffMin: 500 * time.Millisecond,
		backoffMax: 10 * time.Second,
		restarts:   maxListenRestarts,
		failed:     make(chan struct{}),
	}
}

// Start is idempotent. Listen errors are retried with backoff, up to
// maxListenRestarts times.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	s.sup.GoRestart("http.serve", s.serveOnce,
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(s.backoffMin, s.backoffMax),
		rtsup.WithMaxRestarts(s.restarts),
	)

	sup := s.sup
	go func() {
		err := sup.Wait(context.Background())
		// A live context here means the serve loop gave up on its own.
		if sup.Context().Err() != nil {
			return
		}
		s.failOnce.Do(func() {
			s.failErr = err
			close(s.failed)
		})
	}()
}

// Failed is closed when the listener kept failing and the restart loop gave up.
func (s *Service) Failed() <-chan struct{} { return s.failed }

// Err is the error that made the service give up. Valid after Failed is closed.
func (s *Service) Err() error {
	select {
	case <-s.failed:
		return s.failErr
	default:
		return nil
	}
}

// Addr is the bound address once the listener is up, else "".
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Ready is closed after the first successful listen.
func (s *Service) Ready() <-chan struct{} { return s.ready }

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()

	if sup == nil {
		return
	}
	sup.Cancel()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			s.log.Warn("http shutdown incomplete", logx.Err(err))
			_ = srv.Close()
		}
	}
	if err := sup.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Debug("http supervisor stopped with error", logx.Err(err))
	}
	s.log.Info("http stopped")
}

func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()

	ln, err := net.Listen("tcp", cur.Addr)
	if err != nil {
		s.log.Error("http listen failed", logx.String("addr", cur.Addr), logx.Err(err))
		return err
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cur.ReadTimeout,
		WriteTimeout:      cur.WriteTimeout,
		IdleTimeout:       cur.IdleTimeout,
		MaxHeaderBytes:    1 << 20,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.ln = ln
	s.srv = srv
	s.mu.Unlock()
	select {
	case <-s.ready:
	default:
		close(s.ready)
	}

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("http started", logx.String("addr", ln.Addr().String()))
	err = srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.srv = nil
		s.ln = nil
	}
	s.mu.Unlock()

	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("http server exited unexpectedly")
	}
	return err
}
