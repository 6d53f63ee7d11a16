package middleware

import "github.com/labstack/echo/v4"

// UserID returns the authenticated subject, or "anon" before JWTAuth ran.
func UserID(c echo.Context) string {
	if s, ok := c.Get(CtxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}

// Role returns the authenticated role in upper case, or "".
func Role(c echo.Context) string {
	s, _ := c.Get(CtxRole).(string)
	return s
}
