package osrm

import (
	"encoding/json"
	"fmt"

	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
	"github.com/lintang-b-s/roadsnap/pkg/geo"
)

const codeOk = "Ok"

const (
	GeometryGeoJSON  = "geojson"
	GeometryPolyline = "polyline"
)

// routeResponse is the subset of the OSRM route service response we read.
type routeResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message,omitempty"`
	Routes  []route `json:"routes"`
}

type route struct {
	Geometry json.RawMessage `json:"geometry"`
	Distance float64         `json:"distance"`
	Duration float64         `json:"duration"`
}

type lineString struct {
	Type        string       `json:"type"`
	Coordinates [][2]float64 `json:"coordinates"`
}

// decodeGeometry reads a route geometry encoded as a GeoJSON LineString or as a
// precision-5 polyline string.
func decodeGeometry(raw json.RawMessage, encoding string) (da.RouteGeometry, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("route has no geometry")
	}

	switch encoding {
	case GeometryPolyline:
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("decode polyline geometry: %w", err)
		}
		coords, err := geo.CoordsFromPolyline(encoded)
		if err != nil {
			return nil, err
		}
		return da.RouteGeometry(coords), nil
	default:
		var ls lineString
		if err := json.Unmarshal(raw, &ls); err != nil {
			return nil, fmt.Errorf("decode geojson geometry: %w", err)
		}
		return da.RouteGeometry(ls.Coordinates), nil
	}
}
