// Package model defines the records that flow through the opportunity pipeline.
package model

import "time"

// Court type values for Location.IndoorOutdoor.
const (
	CourtIndoor  = "indoor"
	CourtOutdoor = "outdoor"
	CourtBoth    = "both"
)

// Location is a single facility record as produced by the collection layer.
type Location struct {
	ID          string   `json:"place_id" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	Address     string   `json:"address"`
	City        string   `json:"city"`
	PostalCode  string   `json:"postal_code,omitempty"`
	Latitude    float64  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude   float64  `json:"longitude" validate:"gte=-180,lte=180"`
	Rating      *float64 `json:"rating,omitempty" validate:"omitempty,gte=0,lte=5"`
	ReviewCount int      `json:"review_count" validate:"gte=0"`
	GoogleURL   string   `json:"google_url,omitempty"`

	// Optional descriptive fields, counted by Completeness.
	FacilityType  string `json:"facility_type,omitempty"`
	NumCourts     *int   `json:"num_courts,omitempty" validate:"omitempty,gte=1"`
	IndoorOutdoor string `json:"indoor_outdoor,omitempty" validate:"omitempty,oneof=indoor outdoor both"`
	Phone         string `json:"phone,omitempty"`
	Website       string `json:"website,omitempty"`

	CollectedAt time.Time `json:"collected_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// Completeness counts the populated optional descriptive fields
// (phone, website, court type, court count, postal code, category).
func (l *Location) Completeness() int {
	n := 0
	if l.Phone != "" {
		n++
	}
	if l.Website != "" {
		n++
	}
	if l.IndoorOutdoor != "" {
		n++
	}
	if l.NumCourts != nil && *l.NumCourts > 0 {
		n++
	}
	if l.PostalCode != "" {
		n++
	}
	if l.FacilityType != "" {
		n++
	}
	return n
}
