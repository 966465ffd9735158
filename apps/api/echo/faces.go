package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core/identity"
)

type faceApi struct {
	store    *identity.Store
	validate *validator.Validate
}

func registerFaceAPI(g *echo.Group, deps ServerDeps) {
	api := faceApi{
		store:    deps.Identities,
		validate: deps.Validate,
	}

	fg := g.Group("/faces")
	fg.GET("", api.query)
	fg.GET("/:id", api.retrieve)
	fg.PUT("/:id", api.put)
}

// Handlers

func (api *faceApi) query(ctx echo.Context) error {
	idts, err := api.store.All(ctx.Request().Context())
	if err != nil {
		return err
	}
	if idts == nil {
		idts = []identity.EnrolledIdentity{}
	}
	return ctx.JSON(http.StatusOK, idts)
}

func (api *faceApi) retrieve(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	idt, err := api.store.FindByID(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, idt)
}

// put enrolls (or re-enrolls) the subject identified by the path id.
func (api *faceApi) put(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	var data identity.NewIdentity
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewIdentity")
	}
	data.ID = id
	data.Clean()
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	idt, err := api.store.Put(ctx.Request().Context(), data.Identity())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, idt)
}

func pathID(ctx echo.Context) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}
