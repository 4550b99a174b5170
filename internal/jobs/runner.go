package jobs

import (
	"context"

	"go.uber.org/zap"

	"video-converter/internal/domain"
	"video-converter/internal/probe"
)

// metadataProber supplies source metadata for a job's input file.
type metadataProber interface {
	Probe(ctx context.Context, path string) (probe.Result, error)
}

// mediaConverter executes one conversion job end to end.
type mediaConverter interface {
	Convert(ctx context.Context, job domain.Job, source probe.Result, onProgress func(percent int)) error
}

// Runner executes batches sequentially, one external process at a time.
// A failed file is reported and skipped; the batch keeps going.
type Runner struct {
	prober    metadataProber
	converter mediaConverter
	logger    *zap.Logger
}

// NewRunner wires a runner over the probe and conversion services.
func NewRunner(prober metadataProber, converter mediaConverter, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		prober:    prober,
		converter: converter,
		logger:    logger,
	}
}

// Run processes the batch on a background goroutine and streams its events
// on the returned channel. The channel is unbuffered and closes when the
// batch ends for any reason; consumers must drain until close. Cancelling
// the context stops the batch between files and kills the in-flight
// process: the interrupted job gets no terminal event and batchFinished is
// suppressed.
func (r *Runner) Run(ctx context.Context, batch []domain.Job) <-chan Event {
	events := make(chan Event)

	go func() {
		defer close(events)

		for _, job := range batch {
			if ctx.Err() != nil {
				r.logger.Info("batch cancelled", zap.String("nextInput", job.InputPath))
				return
			}
			r.runJob(ctx, job, events)
		}

		if ctx.Err() != nil {
			return
		}
		events <- Event{Type: EventTypeBatchFinished}
	}()

	return events
}

// runJob probes and converts one file, emitting its terminal event. A job
// interrupted by cancellation emits nothing.
func (r *Runner) runJob(ctx context.Context, job domain.Job, events chan<- Event) {
	source, err := r.prober.Probe(ctx, job.InputPath)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("probe failed",
			zap.String("input", job.InputPath),
			zap.Error(err),
		)
		events <- Event{Type: EventTypeError, Path: job.InputPath, Message: err.Error()}
		return
	}

	r.logger.Debug("probe succeeded",
		zap.String("input", job.InputPath),
		zap.Float64("durationSeconds", source.DurationSeconds),
		zap.Int("width", source.Width()),
		zap.Int("height", source.Height()),
	)

	err = r.converter.Convert(ctx, job, source, func(percent int) {
		events <- Event{Type: EventTypeProgress, Path: job.InputPath, Percent: percent}
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("conversion failed",
			zap.String("input", job.InputPath),
			zap.Error(err),
		)
		events <- Event{Type: EventTypeError, Path: job.InputPath, Message: err.Error()}
		return
	}

	r.logger.Info("conversion finished",
		zap.String("input", job.InputPath),
		zap.String("output", job.OutputPath),
	)
	events <- Event{Type: EventTypeFinished, Path: job.InputPath}
}
