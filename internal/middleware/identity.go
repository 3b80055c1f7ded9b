package middleware

// identity.go holds the context keys JWTAuth fills and the accessors used
// by handlers and the rate limiter.

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

const (
    ctxUserID = "user_id"
    ctxRole   = "role"
)

// UserID returns the authenticated user's numeric id.  ok is false when
// the request did not pass through JWTAuth.
func UserID(c echo.Context) (uint64, bool) {
    switch v := c.Get(ctxUserID).(type) {
    case uint64:
        return v, v != 0
    case float64:
        return uint64(v), v > 0
    case string:
        n, err := strconv.ParseUint(v, 10, 64)
        return n, err == nil && n != 0
    }
    return 0, false
}

// Role returns the role claim of the authenticated user, if any.
func Role(c echo.Context) string {
    r, _ := c.Get(ctxRole).(string)
    return r
}

// userKey identifies the caller for rate limiting; anonymous callers
// share the "anon" bucket of their IP.
func userKey(c echo.Context) string {
    if id, ok := UserID(c); ok {
        return strconv.FormatUint(id, 10)
    }
    return "anon"
}
