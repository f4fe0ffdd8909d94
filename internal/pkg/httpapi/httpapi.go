// Package httpapi renders the uniform {code, message, data, traceId}
// envelope every HTTP surface in this system returns, success or
// business error alike, keeping HTTP status at 200 for business
// outcomes and reserving non-200 for transport failures.
package httpapi

import (
	"net/http"

	"github.com/airenas/voxsum/internal/pkg/apperr"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const traceIDHeader = "x-request-id"

// TraceID returns the request's trace id, generating one if the caller
// didn't supply x-request-id.
func TraceID(c echo.Context) string {
	if id := c.Request().Header.Get(traceIDHeader); id != "" {
		return id
	}
	return uuid.New().String()
}

// Locale resolves the response locale from Accept-Language.
func Locale(c echo.Context) string {
	return apperr.ResolveLocale(c.Request().Header.Get("Accept-Language"))
}

// OK writes a success envelope with HTTP 200.
func OK(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, apperr.OK(data, TraceID(c)))
}

// Err writes a business-error envelope, still HTTP 200 per the spec's
// convention (non-200 is reserved for transport failures). Unrecognised
// errors are wrapped as a 50000 system error.
func Err(c echo.Context, err error) error {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.System(err)
	}
	env := apperr.FromError(e, TraceID(c), func(code apperr.Code, fallback string) string {
		return apperr.Localize(Locale(c), code, fallback)
	})
	return c.JSON(http.StatusOK, env)
}
