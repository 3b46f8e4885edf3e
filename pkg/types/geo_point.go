package types

// GeoPoint is a WGS84 coordinate pair attached to an engagement.
type GeoPoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}
