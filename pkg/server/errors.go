package server

import (
	"errors"
	"net/http"

	"github.com/jdziat/simple-report-runs/pkg/collab"
	"github.com/jdziat/simple-report-runs/pkg/core"
	"github.com/jdziat/simple-report-runs/pkg/dashboard"
)

// httpStatus maps domain errors onto response codes.
func httpStatus(err error) int {
	var rerr *core.ResolutionError
	switch {
	case errors.As(err, &rerr),
		errors.Is(err, core.ErrUnknownJobType),
		errors.Is(err, core.ErrInvalidScheduledDate):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrRunNotFound),
		errors.Is(err, dashboard.ErrSnapshotNotFound),
		errors.Is(err, collab.ErrReportNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
