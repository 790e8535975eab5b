package controllers

import (
	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
	"github.com/lintang-b-s/roadsnap/pkg/spatialindex"
)

// RangeTimeLayout is the format of the start and end query parameters.
const RangeTimeLayout = "2006-01-02 15:04"

type pointsRangeRequest struct {
	Start string `validate:"required"`
	End   string `validate:"required"`
}

type nearbyRequest struct {
	Lat    float64 `validate:"min=-90,max=90"`
	Lon    float64 `validate:"min=-180,max=180"`
	Radius float64 `validate:"gt=0,lte=5000"`
	Limit  int     `validate:"gte=0,lte=1000"`
}

// uploadPointRequest is one NDJSON line of an upload. Pointers tell a missing
// field from a zero value.
type uploadPointRequest struct {
	ID          *int64   `json:"id" validate:"omitempty,gt=0"`
	Datetime    *string  `json:"datetime" validate:"required"`
	Latitude    *float64 `json:"latitude" validate:"required,min=-90,max=90"`
	Longitude   *float64 `json:"longitude" validate:"required,min=-180,max=180"`
	OriginalIsh *int     `json:"original_ish" validate:"required,oneof=0 1"`
}

type pointResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Datetime  string  `json:"datetime"`
}

func newPointResponse(p da.PathPoint) pointResponse {
	return pointResponse{
		Latitude:  p.Lat,
		Longitude: p.Lon,
		Datetime:  p.Time.Format(da.OutputTimeLayout),
	}
}

type rangeResponse struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type pointsRangeResponse struct {
	Points []pointResponse `json:"points"`
	Count  int             `json:"count"`
	Range  rangeResponse   `json:"range"`
}

func NewPointsRangeResponse(points []da.PathPoint, start, end string) pointsRangeResponse {
	resp := pointsRangeResponse{
		Points: make([]pointResponse, 0, len(points)),
		Count:  len(points),
		Range:  rangeResponse{Start: start, End: end},
	}
	for _, p := range points {
		resp.Points = append(resp.Points, newPointResponse(p))
	}
	return resp
}

type nearbyPointResponse struct {
	pointResponse
	ID         int64   `json:"id"`
	DistanceM  float64 `json:"distance_m"`
	BearingDeg float64 `json:"bearing_deg"`
}

type nearbyResponse struct {
	Points []nearbyPointResponse `json:"points"`
	Count  int                   `json:"count"`
}

func NewNearbyResponse(neighbors []spatialindex.Neighbor) nearbyResponse {
	resp := nearbyResponse{
		Points: make([]nearbyPointResponse, 0, len(neighbors)),
		Count:  len(neighbors),
	}
	for _, n := range neighbors {
		resp.Points = append(resp.Points, nearbyPointResponse{
			pointResponse: newPointResponse(n.Point),
			ID:            n.Point.ID,
			DistanceM:     n.DistanceKM * 1000,
			BearingDeg:    n.Bearing,
		})
	}
	return resp
}

type uploadResponse struct {
	Inserted int      `json:"inserted"`
	Errors   []string `json:"errors"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
