// File: internal/engine/engine.go

// Package engine runs protection tasks against image files: dispatching each
// task to the adapter for its operation, bounding concurrency, and streaming
// results to a reporter.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pngprotect/pngprotect-cli/api/schemas"
	"github.com/pngprotect/pngprotect-cli/internal/config"
	"github.com/pngprotect/pngprotect-cli/internal/extractor"
	"github.com/pngprotect/pngprotect-cli/internal/forensics"
	"github.com/pngprotect/pngprotect-cli/internal/reporting"
)

// Adapter executes one operation type against a decoded task.
type Adapter interface {
	Name() string
	Execute(ctx context.Context, task *schemas.Task, env *schemas.ResultEnvelope) error
}

// Engine is the central dispatcher, routing tasks to the appropriate adapter
// and fanning work across a bounded worker pool.
type Engine struct {
	cfg      *config.Config
	logger   *zap.Logger
	reporter reporting.Reporter
	registry map[schemas.TaskType]Adapter
	limiter  *rate.Limiter
}

// Option configures an Engine.
type Option func(*Engine)

// WithAdapters injects a custom adapter set, primarily so tests can replace
// real adapters with mocks.
func WithAdapters(adapters map[schemas.TaskType]Adapter) Option {
	return func(e *Engine) {
		e.registry = adapters
	}
}

// New initializes an engine instance.
func New(cfg *config.Config, logger *zap.Logger, reporter reporting.Reporter, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "engine")),
		reporter: reporter,
		registry: make(map[schemas.TaskType]Adapter),
	}
	if cfg.Engine.TasksPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.Engine.TasksPerSecond), 1)
	}

	for _, opt := range opts {
		opt(e)
	}
	if len(e.registry) == 0 {
		e.registerAdapters()
	}
	return e
}

// ExtractorConfig translates the application config into the extractor's own
// config type.
func ExtractorConfig(cfg *config.Config) extractor.Config {
	return extractor.Config{
		Seed:          cfg.Extractor.Seed,
		InputSize:     cfg.Extractor.InputSize,
		PatchSize:     cfg.Extractor.PatchSize,
		HiddenSize:    cfg.Extractor.HiddenSize,
		NumClasses:    cfg.Extractor.NumClasses,
		MaxConcurrent: cfg.Extractor.MaxConcurrent,
	}
}

func (e *Engine) registerAdapters() {
	extCfg := ExtractorConfig(e.cfg)
	e.registry[schemas.TaskEmbed] = &embedAdapter{}
	e.registry[schemas.TaskExtract] = &extractAdapter{}
	e.registry[schemas.TaskProtect] = &protectAdapter{extCfg: extCfg}
	e.registry[schemas.TaskScore] = &scoreAdapter{extCfg: extCfg}
	e.registry[schemas.TaskAnalyze] = &analyzeAdapter{analyzer: forensics.NewAnalyzer(e.logger)}
	e.registry[schemas.TaskStrip] = &stripAdapter{}
	e.logger.Debug("Default task adapters registered", zap.Int("count", len(e.registry)))
}

// Run processes all tasks across the configured worker pool, reporting each
// result as it completes. Tasks flow through a bounded queue sized by
// engine.queue_size into WorkerConcurrency workers. Task failures are reported
// in their envelopes, not returned; Run only fails on cancellation or a broken
// reporter.
func (e *Engine) Run(ctx context.Context, tasks []schemas.Task) error {
	jobID := uuid.NewString()
	e.logger.Info("Job starting",
		zap.String("job_id", jobID),
		zap.Int("tasks", len(tasks)),
		zap.Int("workers", e.cfg.Engine.WorkerConcurrency),
		zap.Int("queue", e.cfg.Engine.QueueSize))

	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan schemas.Task, e.cfg.Engine.QueueSize)

	g.Go(func() error {
		defer close(queue)
		for i := range tasks {
			task := tasks[i]
			if task.JobID == "" {
				task.JobID = jobID
			}
			if task.TaskID == "" {
				task.TaskID = uuid.NewString()
			}
			if task.CreatedAt.IsZero() {
				task.CreatedAt = time.Now().UTC()
			}
			select {
			case queue <- task:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < e.cfg.Engine.WorkerConcurrency; w++ {
		g.Go(func() error {
			for task := range queue {
				if e.limiter != nil {
					if err := e.limiter.Wait(gctx); err != nil {
						return fmt.Errorf("engine: rate limit wait: %w", err)
					}
				}
				env := e.Execute(gctx, &task)
				if err := e.reporter.Report(env); err != nil {
					return err
				}
				if gctx.Err() != nil {
					return gctx.Err()
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("engine: job %s: %w", jobID, err)
	}
	e.logger.Info("Job finished", zap.String("job_id", jobID))
	return nil
}

// Execute dispatches a single task and captures its outcome in an envelope.
func (e *Engine) Execute(ctx context.Context, task *schemas.Task) *schemas.ResultEnvelope {
	env := &schemas.ResultEnvelope{
		JobID:     task.JobID,
		TaskID:    task.TaskID,
		Type:      task.Type,
		Input:     task.Input,
		Output:    task.Output,
		Timestamp: time.Now().UTC(),
	}

	adapter, ok := e.registry[task.Type]
	if !ok {
		env.Error = fmt.Sprintf("no adapter registered for task type %q", task.Type)
		return env
	}

	opCtx := ctx
	if e.cfg.Engine.DefaultTaskTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, e.cfg.Engine.DefaultTaskTimeout)
		defer cancel()
	}

	logger := e.logger.With(
		zap.String("task_id", task.TaskID),
		zap.String("adapter", adapter.Name()),
		zap.String("input", task.Input))
	logger.Debug("Dispatching task")

	if err := adapter.Execute(opCtx, task, env); err != nil {
		logger.Warn("Task failed", zap.Error(err))
		env.Error = err.Error()
		return env
	}
	logger.Debug("Task complete")
	return env
}
