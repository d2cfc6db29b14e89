// Package geo provides great-circle distance math for proximity
// filtering of errands and agents.
package geo

import "math"

// earthRadiusKm is the mean Earth radius used by the Haversine formula.
const earthRadiusKm = 6371

const (
	// ErrandRadiusKm bounds which posted errands an agent can see.
	ErrandRadiusKm = 2.0
	// AgentRadiusKm bounds the informational "agents nearby" count
	// shown to customers. It never filters errand visibility.
	AgentRadiusKm = 5.0
)

// Fallback coordinates (Manila) used when a client provides none.
const (
	FallbackLat = 14.5995
	FallbackLng = 120.9842
)

// Distance returns the great-circle distance in kilometers between two
// coordinates using the Haversine formula.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}
