package controllers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
	helper "github.com/lintang-b-s/roadsnap/pkg/http/router/routerhelper"
	"github.com/lintang-b-s/roadsnap/pkg/util"
	"go.uber.org/zap"
)

const maxUploadBytes = 64 << 20

type traceAPI struct {
	traceService TraceService
	validator    *requestValidator
	log          *zap.Logger
}

func New(traceService TraceService, log *zap.Logger) *traceAPI {
	return &traceAPI{
		traceService: traceService,
		validator:    newRequestValidator(),
		log:          log,
	}
}

func (api *traceAPI) Routes(group *helper.RouteGroup) {
	group.GET("/points", api.pointsInRange)
	group.GET("/points/nearby", api.nearbyPoints)
	group.POST("/points", api.uploadPoints)
}

func (api *traceAPI) pointsInRange(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	query := r.URL.Query()
	request := pointsRangeRequest{
		Start: strings.TrimSpace(query.Get("start")),
		End:   strings.TrimSpace(query.Get("end")),
	}
	if err := api.validator.Struct(request); err != nil {
		api.BadRequestResponse(w, r, errors.New("start and end date are required"))
		return
	}

	start, errStart := time.Parse(RangeTimeLayout, request.Start)
	end, errEnd := time.Parse(RangeTimeLayout, request.End)
	if errStart != nil || errEnd != nil || start.After(end) {
		api.BadRequestResponse(w, r, errors.New("invalid date format or range, use YYYY-MM-DD HH:MM"))
		return
	}

	points, err := api.traceService.PointsInRange(r.Context(), start, end)
	if err != nil {
		api.getStatusCode(w, r, err)
		return
	}

	headers := make(http.Header)
	if err := api.writeJSON(w, http.StatusOK, envelope{"data": NewPointsRangeResponse(points, request.Start, request.End)}, headers); err != nil {
		api.ServerErrorResponse(w, r, err)
		return
	}
}

func (api *traceAPI) nearbyPoints(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var (
		request nearbyRequest
		err     error
	)

	query := r.URL.Query()

	request.Lat, err = strconv.ParseFloat(query.Get("lat"), 64)
	if err != nil {
		api.BadRequestResponse(w, r, errors.New("lat is required and must be a valid float"))
		return
	}
	request.Lon, err = strconv.ParseFloat(query.Get("lon"), 64)
	if err != nil {
		api.BadRequestResponse(w, r, errors.New("lon is required and must be a valid float"))
		return
	}
	request.Radius, err = strconv.ParseFloat(query.Get("radius"), 64)
	if err != nil {
		api.BadRequestResponse(w, r, errors.New("radius is required and must be a valid float"))
		return
	}
	if limit := query.Get("limit"); limit != "" {
		request.Limit, err = strconv.Atoi(limit)
		if err != nil {
			api.BadRequestResponse(w, r, errors.New("limit must be a valid int"))
			return
		}
	}
	if err := api.validator.Struct(request); err != nil {
		api.BadRequestResponse(w, r, err)
		return
	}

	neighbors := api.traceService.NearbyPoints(request.Lat, request.Lon, request.Radius, request.Limit)

	headers := make(http.Header)
	if err := api.writeJSON(w, http.StatusOK, envelope{"data": NewNearbyResponse(neighbors)}, headers); err != nil {
		api.ServerErrorResponse(w, r, err)
		return
	}
}

// uploadPoints stores newline-delimited JSON points. Lines that cannot be
// decoded or validated are reported back; the rest are stored.
func (api *traceAPI) uploadPoints(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	defer r.Body.Close()

	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var (
		points    []da.PathPoint
		pointLine []int
		errs      []string
		lines     int
	)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		lines++

		point, err := api.parseUploadLine(line)
		if err != nil {
			errs = append(errs, fmt.Sprintf("line %d: %v", lineNo, err))
			continue
		}
		points = append(points, point)
		pointLine = append(pointLine, lineNo)
	}
	if err := scanner.Err(); err != nil {
		api.BadRequestResponse(w, r, fmt.Errorf("read payload: %w", err))
		return
	}
	if lines == 0 {
		api.BadRequestResponse(w, r, errors.New("empty payload"))
		return
	}

	inserted, insertErrs := api.traceService.InsertPoints(r.Context(), points)
	if len(errs) == 0 && allConflicts(insertErrs) {
		api.getStatusCode(w, r, util.WrapErrorf(insertErrs[0], util.ErrConflict,
			"all %d points already exist", len(points)))
		return
	}
	for i, err := range insertErrs {
		if err != nil {
			errs = append(errs, fmt.Sprintf("line %d: %v", pointLine[i], err))
		}
	}
	if errs == nil {
		errs = []string{}
	}

	headers := make(http.Header)
	if err := api.writeJSON(w, http.StatusOK, envelope{"data": uploadResponse{Inserted: inserted, Errors: errs}}, headers); err != nil {
		api.ServerErrorResponse(w, r, err)
		return
	}
}

func (api *traceAPI) parseUploadLine(line []byte) (da.PathPoint, error) {
	var request uploadPointRequest
	if err := json.Unmarshal(line, &request); err != nil {
		return da.PathPoint{}, errors.New("JSON decode error")
	}
	if err := api.validator.Struct(request); err != nil {
		return da.PathPoint{}, err
	}

	t, err := time.Parse(da.TimeLayout, strings.TrimSpace(*request.Datetime))
	if err != nil {
		return da.PathPoint{}, fmt.Errorf("datetime must be YYYY-MM-DD HH:MM:SS")
	}

	point := da.PathPoint{
		Time:     t,
		Lat:      *request.Latitude,
		Lon:      *request.Longitude,
		Original: *request.OriginalIsh == 1,
	}
	if request.ID != nil {
		point.ID = *request.ID
	}
	return point, nil
}

// allConflicts reports whether every point was rejected as a duplicate.
func allConflicts(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, err := range errs {
		var ierr *util.Error
		if !errors.As(err, &ierr) || ierr.Code() != util.ErrConflict {
			return false
		}
	}
	return true
}
