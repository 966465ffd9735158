package echoapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/attendance"
)

const maxBulkBody = 8 << 20

type (
	attendanceApi struct {
		repo     AttendanceRepository
		validate *validator.Validate
		logger   core.Logger
	}

	bulkRequest struct {
		Records []attendance.Mark `json:"records" validate:"dive"`
	}

	bulkResponse struct {
		Success bool `json:"success"`
		Synced  int  `json:"synced"`
	}
)

func registerAttendanceAPI(g *echo.Group, deps ServerDeps) {
	api := attendanceApi{
		repo:     deps.Attendance,
		validate: deps.Validate,
		logger:   deps.Logger,
	}

	ag := g.Group("/attendance")
	ag.POST("/bulk", api.bulkUpsert)
	ag.GET("", api.query)
	ag.GET("/summary", api.summary)
}

// Handlers

func (api *attendanceApi) bulkUpsert(ctx echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxBulkBody))
	if err != nil {
		return errors.Wrap(err, "reading request body")
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		return errExpectedArray
	}

	var data bulkRequest
	if err = json.Unmarshal(body, &data.Records); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed attendance records").WithInternal(err)
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	synced := 0
	if len(data.Records) > 0 {
		if synced, err = api.repo.BulkUpsert(ctx.Request().Context(), data.Records); err != nil {
			return errors.Wrap(err, "upserting attendance records")
		}
	}
	api.logger.Info(fmt.Sprintf("bulk upsert from %s (batch %q): %d records, %d written",
		deviceID(ctx), ctx.Request().Header.Get("X-Batch-ID"), len(data.Records), synced))

	return ctx.JSON(http.StatusOK, bulkResponse{Success: true, Synced: synced})
}

func (api *attendanceApi) query(ctx echo.Context) error {
	filter, err := bindFilter(ctx)
	if err != nil {
		return err
	}
	records, err := api.repo.QueryRecords(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying attendance records")
	}
	if records == nil {
		records = []attendance.Record{}
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *attendanceApi) summary(ctx echo.Context) error {
	filter, err := bindFilter(ctx)
	if err != nil {
		return err
	}
	records, err := api.repo.QueryRecords(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying attendance records")
	}
	return ctx.JSON(http.StatusOK, attendance.Summarize(records))
}
