package echoportal

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eduweave/eduweave/core"
	"github.com/eduweave/eduweave/core/query"
	"github.com/eduweave/eduweave/core/records"
	"github.com/eduweave/eduweave/core/session"
	"github.com/eduweave/eduweave/core/user"
	"github.com/eduweave/eduweave/services/baas"
)

const (
	failureFetch    = "fetch"
	failureMutation = "mutation"
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler rendering errors as views.
// A backend rejecting the session's token signs the session out.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, store *session.Store, failures func(kind string), signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		code := http.StatusInternalServerError
		var message interface{}
		viewName := "error"

		var (
			herr     *echo.HTTPError
			valErrs  validator.ValidationErrors
			valErr   *core.ValidationError
			apiErr   *baas.APIError
			location string
		)
		switch {
		case errors.As(err, &herr):
			if herr.Internal != nil {
				if inner, ok := herr.Internal.(*echo.HTTPError); ok {
					herr = inner
				}
			}
			code = herr.Code
			message = herr.Message
		case errors.As(err, &valErrs):
			code = http.StatusBadRequest
			message = core.TranslateValidationErrors(valErrs, translator)
		case errors.As(err, &valErr):
			code = http.StatusBadRequest
			if valErr.Fields != nil {
				fldErrs := make(map[string]string, len(valErr.Fields))
				for _, fErr := range valErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = valErr.Error()
			}
		case errors.Is(err, session.ErrAuthenticationFailed):
			code = http.StatusUnauthorized
			viewName = "login"
			message = session.ErrAuthenticationFailed.Error()
		case errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized:
			logger.Info("backend rejected the session token, signing out", err)
			store.SignOut(ctx.Request().Context())
			location = user.LoginPath
		case errors.Is(err, records.ErrNotFound):
			code = http.StatusNotFound
			message = http.StatusText(http.StatusNotFound)
		case query.IsFetchError(err), query.IsMutationError(err):
			kind := failureFetch
			if query.IsMutationError(err) {
				kind = failureMutation
			}
			failures(kind)
			code = http.StatusBadGateway
			message = err.Error()
			logger.Warn("backend request failed", err, map[string]interface{}{"path": ctx.Path()})
		default:
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			args := []interface{}{errors.Wrap(err, msg)}
			if usr, ok := contextUser(ctx); ok {
				args = append(args, usr)
			}
			logger.Error(msg, args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}

		// Send response
		if ctx.Response().Committed {
			return
		}
		if location != "" {
			err = ctx.Redirect(http.StatusFound, location)
		} else if ctx.Request().Method == http.MethodHead { // Issue #608
			err = ctx.NoContent(code)
		} else {
			v := view{View: viewName}
			if usr, ok := contextUser(ctx); ok {
				v.User = &usr
			}
			switch m := message.(type) {
			case string:
				v.Error = m
			default:
				v.Data = echo.Map{"errors": m}
			}
			err = ctx.JSON(code, v)
		}
		if err != nil {
			ctx.Echo().Logger.Error(err)
		}
	}
}
