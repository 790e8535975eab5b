package geo

import (
	"math"

	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
	"github.com/lintang-b-s/roadsnap/pkg/util"
)

// InitialBearing is the compass bearing in degrees [0, 360) of the great
// circle from the first point towards the second.
// https://www.movable-type.co.uk/scripts/latlong.html
func InitialBearing(latOne, lonOne, latTwo, lonTwo float64) float64 {
	dLon := util.DegreeToRadians(lonTwo - lonOne)

	lat1 := util.DegreeToRadians(latOne)
	lat2 := util.DegreeToRadians(latTwo)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return math.Mod(util.RadiansToDegree(math.Atan2(y, x))+360, 360.0)
}

// RadiusBoundingBox is the box circumscribing the circle of radiusKM around
// (lat, lon).
func RadiusBoundingBox(lat, lon, radiusKM float64) da.BoundingBox {
	diag := radiusKM * math.Sqrt2
	minLat, minLon := GetDestinationPoint(lat, lon, 225, diag)
	maxLat, maxLon := GetDestinationPoint(lat, lon, 45, diag)
	return da.NewBoundingBox(minLat, minLon, maxLat, maxLon)
}
