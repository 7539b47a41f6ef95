// Package urlnorm normalizes URLs into a stable dedupe key so the researcher
// can merge citations for the same page fetched under cosmetically
// different URLs (tracking parameters, trailing slashes, default ports).
package urlnorm

import (
	"net/url"
	"sort"
	"strings"
)

// trackingParams are stripped before computing a dedupe key, as is any other
// parameter whose name starts with utm_.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"ref":          true,
	"fbclid":       true,
	"gclid":        true,
}

var defaultPort = map[string]string{
	"http":  "80",
	"https": "443",
}

// Key returns a normalized dedupe key for raw. Lowercases scheme and host,
// strips the default port for the scheme, strips a trailing slash, removes
// the fragment, and strips tracking query parameters (sorting the rest for
// a stable key). On parse failure it falls back to the trimmed raw string.
func Key(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(strings.TrimSpace(raw), "/")
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if port := u.Port(); port != "" && port == defaultPort[scheme] {
		host = strings.TrimSuffix(host, ":"+port)
	}

	path := strings.TrimSuffix(u.Path, "/")

	query := u.Query()
	for k := range query {
		if lk := strings.ToLower(k); trackingParams[lk] || strings.HasPrefix(lk, "utm_") {
			query.Del(k)
		}
	}
	var keys []string
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var q strings.Builder
	for i, k := range keys {
		if i > 0 {
			q.WriteByte('&')
		}
		q.WriteString(k)
		q.WriteByte('=')
		q.WriteString(strings.Join(query[k], ","))
	}

	key := scheme + "://" + host + path
	if q.Len() > 0 {
		key += "?" + q.String()
	}
	return key
}

// Equal reports whether a and b normalize to the same key.
func Equal(a, b string) bool {
	return Key(a) == Key(b)
}
