package transport

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// extractToken pulls a bearer token from the Sec-WebSocket-Protocol
// header (browsers can't set arbitrary headers on the upgrade request)
// or, failing that, the access_token query param.
func extractToken(c *gin.Context) string {
	headerVal := c.GetHeader("Sec-WebSocket-Protocol")
	if headerVal != "" {
		for p := range strings.SplitSeq(headerVal, ",") {
			p = strings.TrimSpace(p)
			if p != "" && p != "access_token" {
				return p
			}
		}
	}
	return c.Query("access_token")
}

// validateOrigin checks the request's Origin header against the
// configured allow-list (scheme+host match, ignoring path).
func validateOrigin(r *http.Request, allowedOrigins []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil // non-browser clients don't send Origin
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin URL: %w", err)
	}

	for _, allowed := range allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}
