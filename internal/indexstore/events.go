package indexstore

import "time"

// UpdateEvent announces a new index generation on the index-updated topic.
type UpdateEvent struct {
	Flavor     string    `json:"flavor"`
	Generation uint64    `json:"generation"`
	Rows       int       `json:"rows"`
	Works      []int64   `json:"works,omitempty"`
	Rebuilt    bool      `json:"rebuilt"`
	At         time.Time `json:"at"`
}
