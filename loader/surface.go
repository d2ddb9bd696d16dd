package loader

import (
	"sync"

	"github.com/paulmach/orb"

	"github.com/frangeo/frangeo/locmodel"
)

// Marker is the disposable render view of a location. Markers live only
// while attached to a surface and never outlive the dataset that produced
// them.
type Marker struct {
	ID       string             `json:"id"`
	Lat      float64            `json:"lat"`
	Lon      float64            `json:"lon"`
	Location *locmodel.Location `json:"-"`
}

// Surface is the external map-rendering collaborator: it only needs to
// accept batches, clear itself and report its extent. The core never
// assumes a specific rendering technology behind it.
type Surface interface {
	AddBatch(markers []Marker)
	Clear()
	Bounds() orb.Bound
}

// SurfaceProvider hands out the surface a dataset key renders onto.
type SurfaceProvider interface {
	SurfaceFor(key string) Surface
}

// MemorySurface collects markers in memory. It backs the API server's
// per-brand views and the tests.
type MemorySurface struct {
	mu      sync.RWMutex
	markers []Marker
}

var _ Surface = (*MemorySurface)(nil)

func (s *MemorySurface) AddBatch(markers []Marker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = append(s.markers, markers...)
}

func (s *MemorySurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = nil
}

func (s *MemorySurface) Markers() []Marker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Marker, len(s.markers))
	copy(out, s.markers)
	return out
}

func (s *MemorySurface) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.markers)
}

func (s *MemorySurface) Bounds() orb.Bound {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b orb.Bound
	for i, m := range s.markers {
		pt := orb.Point{m.Lon, m.Lat}
		if i == 0 {
			b = orb.Bound{Min: pt, Max: pt}
		} else {
			b = b.Extend(pt)
		}
	}
	return b
}

// MemorySurfaces is a SurfaceProvider keyed by dataset, creating surfaces
// lazily.
type MemorySurfaces struct {
	mu       sync.Mutex
	surfaces map[string]*MemorySurface
}

func NewMemorySurfaces() *MemorySurfaces {
	return &MemorySurfaces{surfaces: map[string]*MemorySurface{}}
}

func (p *MemorySurfaces) SurfaceFor(key string) Surface {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.surfaces[key]
	if !ok {
		s = &MemorySurface{}
		p.surfaces[key] = s
	}
	return s
}

// Get returns the surface for a key without creating one.
func (p *MemorySurfaces) Get(key string) (*MemorySurface, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.surfaces[key]
	return s, ok
}
