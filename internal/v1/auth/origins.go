package auth

import (
	"net/url"
	"strings"

	"k8s.io/utils/set"
)

// ExpandOrigins takes a configured origin list and adds the www./non-www.
// counterpart of every http(s) origin, so operators don't have to list
// both forms in ALLOWED_ORIGINS by hand.
func ExpandOrigins(origins []string) []string {
	expanded := set.New[string]()
	for _, origin := range origins {
		expanded.Insert(origin)
		if variant, ok := toggleWWW(origin); ok {
			expanded.Insert(variant)
		}
	}
	return expanded.UnsortedList()
}

func toggleWWW(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return "", false
	}

	if strings.HasPrefix(u.Host, "www.") {
		u.Host = strings.TrimPrefix(u.Host, "www.")
	} else {
		u.Host = "www." + u.Host
	}
	return u.String(), true
}
