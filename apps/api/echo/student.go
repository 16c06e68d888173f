package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/student"
	"github.com/yarcoin/marketplace/core/user"
)

type studentApi struct {
	svc      *student.Service
	validate *validator.Validate
}

func registerStudentAPI(g *echo.Group, jwt, limit echo.MiddlewareFunc, deps *Deps) {
	api := studentApi{svc: deps.StudentSvc, validate: deps.Validate}

	g.POST("/students", newAccountApi(deps).registerAs(user.RoleStudent), limit)
	g.GET("/students", api.query)
	g.GET("/students/:id", api.retrieve)
	g.GET("/students/:id/achievements", api.queryAchievements)
	g.POST("/students/:id/achievements", api.addAchievement,
		jwt, roleMiddleware(user.RoleStudent), selfMiddleware, middleware.BodyLimit(deps.Conf.Server.MaxUploadSize))
}

// Handlers

func (api *studentApi) query(ctx echo.Context) error {
	var filter student.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	if err := filter.Validate(api.validate); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	st, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *studentApi) queryAchievements(ctx echo.Context) error {
	achievements, err := api.svc.QueryAchievements(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying achievements")
	}
	return ctx.JSON(http.StatusOK, achievements)
}

func (api *studentApi) addAchievement(ctx echo.Context) error {
	var data student.NewAchievement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAchievement")
	}

	fh, err := ctx.FormFile(student.CertificateField)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: student.CertificateField, Error: "this field is required"})
	}
	file, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening certificate")
	}
	defer func() { _ = file.Close() }()

	ach, err := api.svc.AddAchievement(ctx.Request().Context(), api.validate, ctx.Param("id"), data, fh.Filename, file)
	if err != nil {
		return errors.Wrap(err, "adding achievement")
	}
	return ctx.JSON(http.StatusCreated, AchievementResponse{Achievement: ach, CertificateRef: ach.CertificateRef})
}

type AchievementResponse struct {
	Achievement    student.Achievement `json:"achievement"`
	CertificateRef string              `json:"certificateRef"`
}
