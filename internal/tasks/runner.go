package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"

	"github.com/shield4u/pagescope/internal/callback"
	"github.com/shield4u/pagescope/internal/extract"
	"github.com/shield4u/pagescope/internal/notifications"
	"github.com/shield4u/pagescope/internal/observability"
	"github.com/shield4u/pagescope/internal/render"
)

// Deliverer posts a terminal result to the orchestrator.
type Deliverer interface {
	Deliver(ctx context.Context, result *callback.Result) error
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Renderer  render.Renderer
	Extractor *extract.Extractor
	Deliverer Deliverer
	Notifier  *notifications.Service
	// ServiceName is echoed in every callback payload.
	ServiceName string
	// RendererName labels render metrics ("chrome" or "static").
	RendererName string
}

// Runner drives each accepted task through
// accepted → rendering → extracting → reporting → completed|failed
// on its own goroutine and sends exactly one callback per task. A render
// failure is terminal for the task; only callback delivery is retried, and
// that inside the client.
type Runner struct {
	renderer  render.Renderer
	extractor *extract.Extractor
	deliverer Deliverer
	notifier  *notifications.Service
	registry  *Registry

	serviceName  string
	rendererName string

	wg sync.WaitGroup
}

// NewRunner creates a Runner with its own registry.
func NewRunner(opts RunnerOptions) *Runner {
	extractor := opts.Extractor
	if extractor == nil {
		extractor = extract.NewExtractor(nil, nil)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService()
	}
	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = "crawler"
	}
	rendererName := opts.RendererName
	if rendererName == "" {
		rendererName = "chrome"
	}

	return &Runner{
		renderer:     opts.Renderer,
		extractor:    extractor,
		deliverer:    opts.Deliverer,
		notifier:     notifier,
		registry:     NewRegistry(),
		serviceName:  serviceName,
		rendererName: rendererName,
	}
}

// Start accepts a task and runs it on its own goroutine. The caller gets
// control back immediately; the outcome is reported through the callback
// client only.
func (r *Runner) Start(task *Task) {
	r.registry.Set(task.ID, StatusAccepted)
	log.Info().
		Str("task_id", task.ID).
		Str("parent_id", task.ParentID).
		Str("target_url", task.TargetURL).
		Int("remaining_depth", task.RemainingDepth).
		Msg("Task accepted")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		// Tasks outlive the accepting HTTP request; the render timeout is
		// the only cancellation that applies.
		r.run(context.Background(), task)
	}()
}

// ActiveCount reports the number of in-flight tasks.
func (r *Runner) ActiveCount() int {
	return r.registry.ActiveCount()
}

// Registry exposes the in-flight registry.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Wait blocks until every in-flight task has finished. Used on shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, task *Task) {
	started := time.Now()

	ctx, span := observability.StartTaskSpan(ctx, observability.TaskSpanInfo{
		TaskID:         task.ID,
		ParentID:       task.ParentID,
		TargetURL:      task.TargetURL,
		RemainingDepth: task.RemainingDepth,
	})
	defer span.End()
	defer r.registry.Remove(task.ID)

	result := r.process(ctx, task)
	r.deliver(ctx, result)

	observability.RecordTask(ctx, observability.TaskMetrics{
		Status:   result.Status,
		Duration: time.Since(started),
	})
	log.Info().
		Str("task_id", task.ID).
		Str("status", result.Status).
		Dur("duration_ms", time.Since(started)).
		Msg("Task finished")
}

// process runs the task to a terminal state and builds the result to
// deliver. It never returns nil.
func (r *Runner) process(ctx context.Context, task *Task) *callback.Result {
	r.transition(task, StatusRendering)
	renderStart := time.Now()
	page, err := r.renderer.Render(ctx, task.TargetURL, task.Cookies)
	observability.RecordRender(ctx, r.rendererName, time.Since(renderStart))
	if err != nil {
		// Terminal: the failure message travels verbatim, with no partial
		// report alongside it.
		r.transition(task, StatusFailed)
		log.Error().
			Err(err).
			Str("task_id", task.ID).
			Str("target_url", task.TargetURL).
			Msg("Render failed")
		sentry.CaptureException(err)
		r.notifier.NotifyTaskFailed(ctx, task.ID, task.TargetURL, err.Error())
		return callback.Failed(task.ID, task.ParentID, r.serviceName, err.Error())
	}

	r.transition(task, StatusExtracting)
	report := r.extractor.Extract(ctx, &extract.Request{
		TaskID:         task.ID,
		ParentID:       task.ParentID,
		TargetURL:      task.TargetURL,
		RemainingDepth: task.RemainingDepth,
		CurrentDepth:   task.CurrentDepth,
	}, page)

	r.transition(task, StatusReporting)
	result := callback.Completed(task.ID, task.ParentID, r.serviceName, report)

	r.transition(task, StatusCompleted)
	return result
}

// deliver sends the one callback for this task. Delivery failure is logged,
// alerted and counted, never re-raised into the task.
func (r *Runner) deliver(ctx context.Context, result *callback.Result) {
	if r.deliverer == nil {
		log.Warn().Str("task_id", result.TaskID).Msg("No callback client configured, dropping result")
		return
	}

	if err := r.deliverer.Deliver(ctx, result); err != nil {
		observability.RecordCallback(ctx, "failed")
		log.Error().
			Err(err).
			Str("task_id", result.TaskID).
			Str("status", result.Status).
			Msg("Callback delivery failed")
		sentry.CaptureException(err)
		r.notifier.NotifyCallbackFailed(ctx, result.TaskID, err.Error())
		return
	}

	observability.RecordCallback(ctx, "delivered")
}

func (r *Runner) transition(task *Task, status Status) {
	r.registry.Set(task.ID, status)
	log.Debug().
		Str("task_id", task.ID).
		Str("status", string(status)).
		Msg("Task transition")
}
