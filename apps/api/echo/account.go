package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/account"
	"github.com/yarcoin/marketplace/core/user"
)

// router is implemented by both *echo.Echo and *echo.Group.
type router interface {
	GET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	POST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
}

type accountApi struct {
	usrSvc   *user.Service
	acctSvc  *account.Service
	validate *validator.Validate
	conf     *core.Config
}

func newAccountApi(deps *Deps) *accountApi {
	return &accountApi{
		usrSvc:   deps.UserSvc,
		acctSvc:  deps.AccountSvc,
		validate: deps.Validate,
		conf:     deps.Conf,
	}
}

func registerAccountAPI(r router, jwt, limit echo.MiddlewareFunc, deps *Deps) {
	api := newAccountApi(deps)

	// un-authed endpoints
	r.POST("/register", api.registerAs(""), limit)
	r.POST("/login", api.login, limit)
	r.POST("/password-reset", api.resetPassword, limit)
	r.POST("/password-reset-confirm", api.confirmPasswordReset, limit)

	// authed endpoints
	r.POST("/token-refresh", api.refreshToken, jwt)
}

// Handlers

// registerAs returns a registration handler. An empty role lets the request pick it.
func (api *accountApi) registerAs(role string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var data account.NewAccount
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to NewAccount")
		}
		if role != "" {
			data.Role = role
		}

		acct, err := api.acctSvc.Register(ctx.Request().Context(), api.validate, data)
		if err != nil {
			return errors.Wrap(err, "registering account")
		}
		return ctx.JSON(http.StatusCreated, acct)
	}
}

func (api *accountApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.usrSvc.Authenticate(ctx.Request().Context(), data.Username, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := GenerateToken(GetUserClaims(usr, api.conf), api.conf.SecretKey)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{
		Role:      usr.Role,
		UserID:    usr.ID,
		ProfileID: usr.ProfileID,
		Token:     token,
	})
}

func (api *accountApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.usrSvc, api.conf)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token})
}

func (api *accountApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.usrSvc.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || errors.Cause(err) == user.ErrNotFound) {
		// do not return errors to attackers
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *accountApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}

	if err := api.usrSvc.ResetPassword(ctx.Request().Context(), api.validate, data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Role      string `json:"role"`
		UserID    string `json:"userId"`
		ProfileID string `json:"profileId"`
		Token     string `json:"token"`
	}

	TokenResponse struct {
		Token string `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
