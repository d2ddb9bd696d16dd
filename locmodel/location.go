package locmodel

// Location is a single franchise unit. It is built once during
// materialization and never mutated afterwards; the whole set is replaced
// when its dataset is reloaded.
type Location struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Brand     string  `json:"brand"`
	Score     float64 `json:"score"`

	Name        string `json:"name,omitempty"`
	Address     string `json:"address,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Franchisee  string `json:"franchisee,omitempty"`
	Status      string `json:"status,omitempty"`
	OpenedYear  int    `json:"opened_year,omitempty"`
	NearbyUnits int    `json:"nearby_units,omitempty"`

	// Extra carries attributes outside the fixed set. Values are limited to
	// string, float64 and bool, see NormalizeExtra.
	Extra map[string]any `json:"extra,omitempty"`
}

// NormalizeExtra filters an attribute bag down to scalar values. Numbers
// decoded from JSON arrive as float64, everything else is dropped.
func NormalizeExtra(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch v.(type) {
		case string, float64, bool:
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
