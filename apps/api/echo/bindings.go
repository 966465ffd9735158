package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/hazira/core/attendance"
)

// bindFilter reads course_id, subject_id, from and to from the query string.
func bindFilter(ctx echo.Context) (attendance.Filter, error) {
	var filter attendance.Filter
	if err := (&echo.DefaultBinder{}).BindQueryParams(ctx, &filter); err != nil {
		return filter, errMalformedQuery
	}
	for _, d := range []attendance.Date{filter.From, filter.To} {
		if d != "" && !d.Valid() {
			return filter, echo.NewHTTPError(http.StatusBadRequest, "dates must be formatted as YYYY-MM-DD")
		}
	}
	return filter, nil
}
