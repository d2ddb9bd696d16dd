// Package loader drives the fetch → materialize → render pipeline for brand
// location datasets, keeping the host responsive by chunking every long
// phase.
package loader

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/goware/singleflight"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/frangeo/frangeo/datacache"
	"github.com/frangeo/frangeo/locgrid"
	"github.com/frangeo/frangeo/locmodel"
)

// State of a dataset key inside the facade.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateMaterializing
	StateRendering
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateMaterializing:
		return "materializing"
	case StateRendering:
		return "rendering"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// LoadResult is the outcome of a completed load: the immutable location set,
// dataset metadata, the count of skipped records and the markers attached to
// the surface.
type LoadResult struct {
	Key       string
	Locations []*locmodel.Location
	Meta      locmodel.Metadata
	Invalid   int
	Markers   []Marker
}

type Facade struct {
	cache    *datacache.Cache
	grid     *locgrid.Grid[*locmodel.Location]
	surfaces SurfaceProvider
	renderer *Renderer

	chunkSize  int
	sched      Scheduler
	onItem     func(*Marker)
	onProgress func(key string, rendered, total int)
	log        *slog.Logger

	states *xsync.MapOf[string, State]
	group  singleflight.Group[string, *LoadResult]

	// guards byKey and the (destructive) grid rebuild
	mu    sync.Mutex
	byKey map[string][]*locmodel.Location
}

type Option func(*Facade)

func WithChunkSize(n int) Option {
	return func(f *Facade) { f.chunkSize = n }
}

func WithScheduler(s Scheduler) Option {
	return func(f *Facade) { f.sched = s }
}

// WithItemHook runs fn once per materialized marker.
func WithItemHook(fn func(*Marker)) Option {
	return func(f *Facade) { f.onItem = fn }
}

func WithProgress(fn func(key string, rendered, total int)) Option {
	return func(f *Facade) { f.onProgress = fn }
}

func WithLogger(log *slog.Logger) Option {
	return func(f *Facade) { f.log = log }
}

func NewFacade(cache *datacache.Cache, grid *locgrid.Grid[*locmodel.Location], surfaces SurfaceProvider, opts ...Option) *Facade {
	f := &Facade{
		cache:     cache,
		grid:      grid,
		surfaces:  surfaces,
		chunkSize: DefaultChunkSize,
		sched:     TickScheduler{},
		log:       slog.Default(),
		states:    xsync.NewMapOf[string, State](),
		byKey:     map[string][]*locmodel.Location{},
	}
	for _, o := range opts {
		o(f)
	}
	f.log = f.log.With("component", "loader")
	f.renderer = NewRenderer(f.log)
	return f
}

// State reports where a dataset key currently is in its lifecycle.
func (f *Facade) State(key string) State {
	s, _ := f.states.Load(key)
	return s
}

func (f *Facade) Renderer() *Renderer { return f.renderer }

// LoadDataset runs the full pipeline for a key and returns the ready
// dataset. Concurrent loads for the same key join the in-flight one; a load
// for any key supersedes whatever render pass is still in progress. A
// failure marks only this key failed and leaves every other key's rendered
// state untouched. A load superseded mid-flight is not a failure: the key
// drops back to idle.
func (f *Facade) LoadDataset(ctx context.Context, key string) (*LoadResult, error) {
	res, err, _ := f.group.Do(key, func() (*LoadResult, error) {
		res, err := f.load(ctx, key)
		if err != nil {
			if errors.Is(err, ErrStaleGeneration) {
				f.states.Store(key, StateIdle)
			} else {
				f.states.Store(key, StateFailed)
			}
			return nil, err
		}
		f.states.Store(key, StateReady)
		return res, nil
	})
	return res, err
}

func (f *Facade) load(ctx context.Context, key string) (*LoadResult, error) {
	log := f.log.With("key", key)

	f.states.Store(key, StateFetching)
	ds, err := f.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	gen := f.renderer.Begin()

	f.states.Store(key, StateMaterializing)
	task := NewMaterializer(f.chunkSize, f.onItem).Materialize(key, ds.Records)

	var batches [][]Marker
	for {
		if f.renderer.stale(gen) {
			return nil, ErrStaleGeneration
		}
		batch, ok := task.Next()
		if !ok {
			break
		}
		batches = append(batches, batch)
		if err := f.sched.Yield(ctx); err != nil {
			return nil, err
		}
	}

	if task.Invalid() > 0 {
		log.Warn("records skipped during materialization",
			"skipped", task.Invalid(), "total", task.Total())
	}

	f.states.Store(key, StateRendering)
	var onProgress func(int, int)
	if f.onProgress != nil {
		onProgress = func(rendered, total int) { f.onProgress(key, rendered, total) }
	}

	markers, err := f.renderer.RenderBatches(ctx, gen, batches, task.Total(),
		f.surfaces.SurfaceFor(key), f.sched, onProgress)
	if err != nil {
		return nil, err
	}

	f.rebuildIndex(key, task.Locations())

	log.Info("dataset ready",
		"locations", len(task.Locations()),
		"skipped", task.Invalid(),
		"batches", len(batches))

	return &LoadResult{
		Key:       key,
		Locations: task.Locations(),
		Meta:      ds.Meta,
		Invalid:   task.Invalid(),
		Markers:   markers,
	}, nil
}

// rebuildIndex replaces the key's locations and rebuilds the shared grid
// over every loaded dataset. The rebuild is destructive, so it happens at
// most once per completed load, under the facade lock.
func (f *Facade) rebuildIndex(key string, locs []*locmodel.Location) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.byKey[key] = locs

	keys := make([]string, 0, len(f.byKey))
	for k := range f.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var points []locgrid.Point[*locmodel.Location]
	for _, k := range keys {
		for _, l := range f.byKey[k] {
			points = append(points, locgrid.Point[*locmodel.Location]{
				Lat:  l.Latitude,
				Lon:  l.Longitude,
				Data: l,
			})
		}
	}
	f.grid.Build(points)
}

// LoadedKeys lists every key with a completed load, sorted.
func (f *Facade) LoadedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.byKey))
	for k := range f.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reload forces a fresh fetch for the key.
func (f *Facade) Reload(ctx context.Context, key string) (*LoadResult, error) {
	f.cache.Invalidate(key)
	return f.LoadDataset(ctx, key)
}

// Loaded returns the location set for a key, if a load has completed.
func (f *Facade) Loaded(key string) ([]*locmodel.Location, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	locs, ok := f.byKey[key]
	return locs, ok
}
