package middleware

import (
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// markupPatterns never belong in a path or query value. Message text is
// stripped separately, so only these are rejected up front.
var markupPatterns = []string{
	"<script",
	"javascript:",
	"vbscript:",
	"onload=",
	"onerror=",
}

// SecurityHeaders adds security headers to all responses. Chat history is
// per-viewer, so nothing may be cached by intermediaries.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}

// MaxBodySize limits request body size.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				jsonError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// ValidateRequest rejects non-JSON bodies, path traversal and markup in
// query values.
func ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if r.ContentLength > 0 && !isJSON(r.Header.Get("Content-Type")) {
				jsonError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
				return
			}
		}

		if badPath(r.URL.Path) {
			jsonError(w, http.StatusBadRequest, "invalid request")
			return
		}

		query, err := url.ParseQuery(r.URL.RawQuery)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid query string")
			return
		}
		for _, values := range query {
			for _, v := range values {
				if containsMarkup(v) {
					jsonError(w, http.StatusBadRequest, "invalid request")
					return
				}
			}
		}

		next.ServeHTTP(w, r)
	})
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

func badPath(path string) bool {
	if strings.Contains(path, "//") {
		return true
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return true
		}
	}
	return containsMarkup(path)
}

func containsMarkup(input string) bool {
	lower := strings.ToLower(input)
	for _, p := range markupPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
