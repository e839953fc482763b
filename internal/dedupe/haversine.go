package dedupe

import (
	"math"

	"github.com/rotisserie/eris"
)

const earthRadiusKm = 6371

// Distance returns the great-circle distance in meters between two
// lon/lat coordinate pairs given in degrees, using the haversine formula.
func Distance(lon1, lat1, lon2, lat2 float64) float64 {
	lon1, lat1 = radians(lon1), radians(lat1)
	lon2, lat2 = radians(lon2), radians(lat2)

	sinLat := math.Sin((lat2 - lat1) / 2)
	sinLon := math.Sin((lon2 - lon1) / 2)
	a := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return earthRadiusKm * 2 * math.Asin(math.Sqrt(a)) * 1000
}

// Distances computes pairwise great-circle distances in meters over four
// equally sized coordinate slices. Batch counterpart of Distance.
func Distances(lon1, lat1, lon2, lat2 []float64) ([]float64, error) {
	n := len(lon1)
	if len(lat1) != n || len(lon2) != n || len(lat2) != n {
		return nil, eris.Errorf("dedupe: coordinate slice lengths differ: %d/%d/%d/%d",
			len(lon1), len(lat1), len(lon2), len(lat2))
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = Distance(lon1[i], lat1[i], lon2[i], lat2[i])
	}
	return out, nil
}

// distancesFrom computes distances in meters from a single point to each
// point of the given coordinate slices.
func distancesFrom(lon, lat float64, lons, lats []float64) []float64 {
	out := make([]float64, len(lons))
	for i := range out {
		out[i] = Distance(lon, lat, lons[i], lats[i])
	}
	return out
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
