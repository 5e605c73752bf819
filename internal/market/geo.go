package market

import "math"

const kmPerDegree = 111

// DistanceKm is the flat-earth approximation used for browsing: the
// Euclidean distance in degrees scaled by 111 km per degree.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := lat1 - lat2
	dLon := lon1 - lon2
	return math.Sqrt(dLat*dLat+dLon*dLon) * kmPerDegree
}
