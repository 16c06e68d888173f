package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/user"
)

// retryAfter is sent along with Busy responses, in seconds.
const retryAfter = "1"

var (
	errUnauthorized   = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errRefreshExpired = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errTooManyReqs    = echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
)

// statusByKind maps each DomainError kind to its HTTP status.
var statusByKind = map[core.ErrorKind]int{
	core.KindValidation:        http.StatusBadRequest,
	core.KindUnauthorized:      http.StatusUnauthorized,
	core.KindForbidden:         http.StatusForbidden,
	core.KindNotFound:          http.StatusNotFound,
	core.KindConflict:          http.StatusConflict,
	core.KindInsufficientFunds: http.StatusConflict,
	core.KindBusy:              http.StatusServiceUnavailable,
	core.KindPersistence:       http.StatusServiceUnavailable,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		if de, ok := core.AsDomainError(err); ok {
			code = statusByKind[de.Kind]
			if code == 0 {
				code = http.StatusInternalServerError
			}
			message = echo.Map{"error": de.Message, "reason": de.Reason}

			switch de.Kind {
			case core.KindBusy:
				ctx.Response().Header().Set("Retry-After", retryAfter)
			case core.KindPersistence:
				logger.Error(de.Message, err, contextUser(ctx))
			}
			send(ctx, code, message)
			return
		}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg), contextUser(ctx))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}
		send(ctx, code, message)
	}
}

func send(ctx echo.Context, code int, message interface{}) {
	if ctx.Response().Committed {
		return
	}
	var err error
	if ctx.Request().Method == http.MethodHead { // Issue #608
		err = ctx.NoContent(code)
	} else {
		err = ctx.JSON(code, message)
	}
	if err != nil {
		ctx.Echo().Logger.Error(err)
	}
}

// contextUser returns what the token tells about the requesting user, for error reports.
func contextUser(ctx echo.Context) user.User {
	var usr user.User
	if claims, err := getContextClaims(ctx); err == nil {
		usr.ID = claims.Subject
		usr.Username = claims.Username
		usr.Email = claims.Email
		usr.Role = claims.Role
	}
	return usr
}
