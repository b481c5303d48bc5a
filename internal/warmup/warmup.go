// Package warmup preloads the language model once at process start.
package warmup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/calmly-app/calmly/internal/conversation"
	"github.com/calmly-app/calmly/internal/logging"
)

const (
	// Prompt is the trivial message sent to load the model.
	Prompt         = "Hello"
	defaultTimeout = 30 * time.Second
)

// Task issues a single completion in the background. Nothing waits on it;
// Done and Err exist so callers and tests can observe that it ran.
type Task struct {
	llm     conversation.Completer
	timeout time.Duration
	logger  *slog.Logger

	once sync.Once
	done chan struct{}
	err  error
}

// New builds a warmup task bounded by timeout.
func New(llm conversation.Completer, timeout time.Duration, logger *slog.Logger) *Task {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Task{llm: llm, timeout: timeout, logger: logging.OrDiscard(logger), done: make(chan struct{})}
}

// Start launches the warmup call once. Later calls are no-ops.
func (t *Task) Start(ctx context.Context) {
	t.once.Do(func() {
		go t.run(context.WithoutCancel(ctx))
	})
}

func (t *Task) run(ctx context.Context) {
	defer close(t.done)

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	_, err := t.llm.Complete(ctx, Prompt)
	t.err = err
	if err != nil {
		t.logger.Warn("model warmup failed", slog.Any("error", err))
		return
	}
	t.logger.Info("model warmed up", slog.Duration("duration", time.Since(start)))
}

// Done is closed once the warmup call has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the warmup outcome. It is only meaningful after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}
