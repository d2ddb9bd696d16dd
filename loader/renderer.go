package loader

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// ErrStaleGeneration marks work superseded by a newer load. Callers treat
// it as a cancellation, not a failure of the dataset.
var ErrStaleGeneration = errors.New("render generation superseded")

// Renderer attaches marker batches to a surface one batch per scheduling
// turn. It owns the process-wide render generation: every pass is tagged
// with the generation it started under, and a pass whose generation has been
// overtaken drops its remaining batches without side effects.
type Renderer struct {
	active atomic.Int64
	log    *slog.Logger
}

func NewRenderer(log *slog.Logger) *Renderer {
	if log == nil {
		log = slog.Default()
	}
	return &Renderer{log: log.With("component", "renderer")}
}

// Begin starts a new render pass, invalidating any pass still in flight.
func (r *Renderer) Begin() int64 {
	return r.active.Add(1)
}

func (r *Renderer) Active() int64 {
	return r.active.Load()
}

func (r *Renderer) stale(gen int64) bool {
	return r.active.Load() != gen
}

// RenderBatches clears the surface and attaches the batches in order,
// yielding between turns and reporting progress after each. total is the
// raw record count for the pass.
func (r *Renderer) RenderBatches(
	ctx context.Context,
	gen int64,
	batches [][]Marker,
	total int,
	surface Surface,
	sched Scheduler,
	onProgress func(rendered, total int),
) ([]Marker, error) {
	if r.stale(gen) {
		return nil, ErrStaleGeneration
	}
	surface.Clear()

	var rendered []Marker
	for _, batch := range batches {
		if r.stale(gen) {
			r.log.Debug("render pass superseded", "generation", gen, "active", r.active.Load())
			return nil, ErrStaleGeneration
		}

		surface.AddBatch(batch)
		rendered = append(rendered, batch...)
		if onProgress != nil {
			onProgress(len(rendered), total)
		}

		if err := sched.Yield(ctx); err != nil {
			return nil, err
		}
	}
	return rendered, nil
}
