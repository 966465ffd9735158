package echoapi

import (
	"crypto/subtle"
	"strings"

	"github.com/labstack/echo/v4"
)

const deviceHeader = "X-Device-ID"

// apiKeyMiddleware only lets through requests carrying "Authorization: Bearer <key>".
// An empty key disables the check (development).
func apiKeyMiddleware(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if key == "" {
				return next(ctx)
			}
			auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
			given, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || given == "" {
				return errMissingKey
			}
			if subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
				return errUnauthorized
			}
			return next(ctx)
		}
	}
}

func deviceID(ctx echo.Context) string {
	if id := ctx.Request().Header.Get(deviceHeader); id != "" {
		return id
	}
	return ctx.RealIP()
}
