package models

import "time"

// Profile represents a named, persisted authenticated-browser-state bundle.
// The cookie snapshot lives on disk under StateDir; only metadata is stored
// in the database.
type Profile struct {
	ID        string    `json:"id" badgerhold:"key"`
	Name      string    `json:"name"`
	StateDir  string    `json:"state_dir"` // Directory holding cookies.json
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cookie is one entry in a profile's persisted cookie snapshot. The shape
// matches what browser cookie exports produce so a jar can be imported
// directly.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"` // Unix seconds; <= 0 means session cookie
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}
