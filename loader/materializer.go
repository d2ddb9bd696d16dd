package loader

import (
	"math"

	"github.com/frangeo/frangeo/locmodel"
)

const DefaultChunkSize = 100

// Materializer turns raw dataset records into renderable markers in bounded
// batches. Records with missing or non-finite coordinates are skipped and
// counted, never fatal.
type Materializer struct {
	chunkSize int
	onItem    func(*Marker)
}

// NewMaterializer builds a materializer with the given batch size. onItem,
// when non-nil, runs once per materialized marker; callers use it to attach
// interaction behavior without this package knowing about UI concerns.
func NewMaterializer(chunkSize int, onItem func(*Marker)) *Materializer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Materializer{chunkSize: chunkSize, onItem: onItem}
}

func (m *Materializer) Materialize(key string, records []locmodel.RawRecord) *MaterializeTask {
	return &MaterializeTask{
		key:       key,
		records:   records,
		chunkSize: m.chunkSize,
		onItem:    m.onItem,
	}
}

// MaterializeTask is the lazy batch sequence for one dataset. Each Next call
// does at most one chunk's worth of work; the caller yields between calls.
type MaterializeTask struct {
	key       string
	records   []locmodel.RawRecord
	chunkSize int
	onItem    func(*Marker)

	pos       int
	invalid   int
	locations []*locmodel.Location
}

// Next materializes the next batch of up to chunkSize markers. The second
// return is false once the input is exhausted.
func (t *MaterializeTask) Next() ([]Marker, bool) {
	if t.pos >= len(t.records) {
		return nil, false
	}

	batch := make([]Marker, 0, t.chunkSize)
	for t.pos < len(t.records) && len(batch) < t.chunkSize {
		rec := t.records[t.pos]
		t.pos++

		if !validCoords(rec.Latitude, rec.Longitude) {
			t.invalid++
			continue
		}

		loc := buildLocation(rec)
		t.locations = append(t.locations, loc)

		marker := Marker{
			ID:       loc.ID,
			Lat:      loc.Latitude,
			Lon:      loc.Longitude,
			Location: loc,
		}
		if t.onItem != nil {
			t.onItem(&marker)
		}
		batch = append(batch, marker)
	}

	if len(batch) == 0 {
		// tail of the input was all invalid records
		return nil, false
	}
	return batch, true
}

// Total is the raw record count, including records that will be skipped.
func (t *MaterializeTask) Total() int { return len(t.records) }

// Invalid counts records skipped so far for missing or non-finite
// coordinates.
func (t *MaterializeTask) Invalid() int { return t.invalid }

// Locations returns the immutable locations materialized so far, in input
// order.
func (t *MaterializeTask) Locations() []*locmodel.Location { return t.locations }

func (t *MaterializeTask) Done() bool { return t.pos >= len(t.records) }

func validCoords(lat, lon *float64) bool {
	if lat == nil || lon == nil {
		return false
	}
	if math.IsNaN(*lat) || math.IsInf(*lat, 0) || math.IsNaN(*lon) || math.IsInf(*lon, 0) {
		return false
	}
	return true
}

func buildLocation(rec locmodel.RawRecord) *locmodel.Location {
	score := rec.Score
	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}

	return &locmodel.Location{
		ID:          rec.ID,
		Latitude:    *rec.Latitude,
		Longitude:   *rec.Longitude,
		Brand:       rec.Category(),
		Score:       score,
		Name:        rec.Name,
		Address:     rec.Address,
		Phone:       rec.Phone,
		Franchisee:  rec.Franchisee,
		Status:      rec.Status,
		OpenedYear:  rec.OpenedYear,
		NearbyUnits: rec.NearbyUnits,
		Extra:       locmodel.NormalizeExtra(rec.Extra),
	}
}
