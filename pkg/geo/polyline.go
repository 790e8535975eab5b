package geo

import (
	"fmt"

	"github.com/twpayne/go-polyline"
)

// PolylineFromCoords encodes (lon, lat) pairs as a precision-5 polyline.
func PolylineFromCoords(coords [][2]float64) string {
	latLon := make([][]float64, 0, len(coords))
	for _, c := range coords {
		latLon = append(latLon, []float64{c[1], c[0]})
	}
	return string(polyline.EncodeCoords(latLon))
}

// CoordsFromPolyline decodes a precision-5 polyline into (lon, lat) pairs.
func CoordsFromPolyline(encoded string) ([][2]float64, error) {
	latLon, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("decode polyline: %d trailing bytes", len(rest))
	}
	coords := make([][2]float64, 0, len(latLon))
	for _, c := range latLon {
		coords = append(coords, [2]float64{c[1], c[0]})
	}
	return coords, nil
}
