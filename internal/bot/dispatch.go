package bot

import (
	"context"
	"runtime/debug"
	"sync"

	"audiolink/internal/transport"
	logx "audiolink/pkg/logx"
)

const jobQueueCap = 256

// DispatchLoop reads updates and runs each one on a bounded worker pool until
// ctx ends or updates is closed. In-flight jobs finish before it returns.
func (h *Handler) DispatchLoop(ctx context.Context, updates <-chan transport.Update, workers int) error {
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan transport.Update, jobQueueCap)

	h.log.Info("dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", jobQueueCap))

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			for up := range jobs {
				h.runJob(ctx, idx, up)
			}
		}()
	}

	defer func() {
		close(jobs)
		wg.Wait()
		h.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				h.log.Info("updates channel closed")
				return nil
			}
			select {
			case jobs <- up:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (h *Handler) runJob(ctx context.Context, worker int, up transport.Update) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("panic in dispatch worker",
				logx.Int("worker", worker),
				logx.String("kind", string(up.Kind)),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()
	h.Handle(ctx, up)
}
