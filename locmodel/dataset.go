package locmodel

// RawRecord is a location as it appears in a brand dataset document.
// Coordinates are pointers so records with missing or null values survive
// decoding and can be counted during materialization instead of failing the
// whole load.
type RawRecord struct {
	ID        string   `json:"id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Brand     string   `json:"brand"`
	Ticker    string   `json:"ticker,omitempty"`
	Score     float64  `json:"score"`

	Name        string `json:"name,omitempty"`
	Address     string `json:"address,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Franchisee  string `json:"franchisee,omitempty"`
	Status      string `json:"status,omitempty"`
	OpenedYear  int    `json:"opened_year,omitempty"`
	NearbyUnits int    `json:"nearby_units,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// Category returns the grouping tag for the record. Some feeds use "brand",
// older ones use the stock ticker.
func (r RawRecord) Category() string {
	if r.Brand != "" {
		return r.Brand
	}
	return r.Ticker
}

type Metadata struct {
	TotalCount  int    `json:"total_count"`
	LastUpdated string `json:"last_updated"`
	Version     string `json:"version"`
}

// Dataset is the decoded form of a brand dataset document:
// {"locations": [...], "metadata": {...}}.
type Dataset struct {
	Key     string      `json:"-"`
	Records []RawRecord `json:"locations"`
	Meta    Metadata    `json:"metadata"`
}
