// Package versioning carries entity versions over HTTP as weak ETags.
package versioning

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	HeaderETag        = "ETag"
	HeaderIfMatch     = "If-Match"
	HeaderIfNoneMatch = "If-None-Match"
)

// Versioned is implemented by entities that carry an optimistic version.
type Versioned interface {
	GetVersionID() int
}

// SetVersionHeaders sets the ETag header on the response.
func SetVersionHeaders(c echo.Context, versionID int) {
	c.Response().Header().Set(HeaderETag, FormatETag(versionID))
}

// RequireIfMatch returns the version named by If-Match. Mutations are never
// unconditional: a missing header is 428 and a malformed one is 400.
func RequireIfMatch(c echo.Context) (int, error) {
	ifMatch := c.Request().Header.Get(HeaderIfMatch)
	if ifMatch == "" {
		return 0, echo.NewHTTPError(http.StatusPreconditionRequired, "If-Match header is required")
	}
	v, err := ParseETag(ifMatch)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid If-Match header: "+err.Error())
	}
	return v, nil
}

// CheckIfNoneMatch reports whether the client already holds currentVersion.
func CheckIfNoneMatch(c echo.Context, currentVersion int) bool {
	ifNoneMatch := c.Request().Header.Get(HeaderIfNoneMatch)
	if ifNoneMatch == "" {
		return false
	}
	v, err := ParseETag(ifNoneMatch)
	if err != nil {
		return false
	}
	return v == currentVersion
}

// ParseETag extracts the version number from an ETag value like W/"3" or "3".
func ParseETag(etag string) (int, error) {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)

	v, err := strconv.Atoi(etag)
	if err != nil {
		return 0, fmt.Errorf("ETag must contain a numeric version: %s", etag)
	}
	if v < 0 {
		return 0, fmt.Errorf("ETag version must not be negative: %d", v)
	}
	return v, nil
}

// FormatETag creates a weak ETag from a version.
func FormatETag(versionID int) string {
	return fmt.Sprintf(`W/"%d"`, versionID)
}
