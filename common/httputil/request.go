package httputil

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// SourceHeader lets callers say which front end issued a request.
const SourceHeader = "X-BloomWatch-Source"

// Source identifies the front end a request came from.
type Source string

const (
	SourceUnknown Source = "unknown"
	SourceWeb     Source = "web"
	SourceCLI     Source = "cli"
	SourceAPI     Source = "api"
)

// RequestSource classifies a request by the SourceHeader, falling back to the
// User-Agent. Browsers are assumed when nothing else matches.
func RequestSource(r *http.Request) Source {
	if s := strings.ToLower(strings.TrimSpace(r.Header.Get(SourceHeader))); s != "" {
		switch Source(s) {
		case SourceWeb, SourceCLI, SourceAPI:
			return Source(s)
		default:
			return SourceUnknown
		}
	}

	ua := strings.ToLower(r.Header.Get("User-Agent"))
	switch {
	case ua == "":
		return SourceUnknown
	case strings.Contains(ua, "bloomwatch-cli"):
		return SourceCLI
	case strings.Contains(ua, "mozilla"):
		return SourceWeb
	default:
		return SourceAPI
	}
}

// GetClientIP extracts the client address, preferring proxy headers:
//  1. X-Forwarded-For (first entry)
//  2. X-Real-IP
//  3. RemoteAddr with the port stripped
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ParseIntParam parses an integer query parameter, returning defaultVal when
// s is empty or not a number.
func ParseIntParam(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return defaultVal
}

// Pagination holds page/limit query parameters.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total,omitempty"`
}

// ParsePagination reads ?page= and ?limit=, clamping limit to [1, maxLimit]
// and page to [1, math.MaxInt/limit] so Offset never overflows.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) Pagination {
	page := ParseIntParam(r.URL.Query().Get("page"), 1)
	limit := ParseIntParam(r.URL.Query().Get("limit"), defaultLimit)

	if limit > maxLimit {
		limit = maxLimit
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if page < 1 {
		page = 1
	}
	if limit > 0 && page > math.MaxInt/limit {
		page = math.MaxInt / limit
	}

	return Pagination{Page: page, Limit: limit}
}

// Offset is the SQL OFFSET for the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}
