package types

import "time"

// Rating is the structured score one party leaves for the other.
type Rating struct {
	Stars     int            `json:"stars"`
	Aspects   map[string]int `json:"aspects,omitempty"`
	Comment   string         `json:"comment,omitempty"`
	RatedAt   time.Time      `json:"ratedAt"`
	RaterID   string         `json:"raterId"`
	RaterRole string         `json:"raterRole"`
}

// IsSet reports whether a rating has been recorded.
func (r *Rating) IsSet() bool {
	return r != nil && r.Stars > 0
}
