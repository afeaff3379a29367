package security

import "net/http"

// SetCallbackHeaders sets security headers on the page the loopback redirect
// listener returns to the browser. The page carries no scripts and must not
// be framed, cached or leak the redirect URL (which holds the code) through
// the Referer header.
func SetCallbackHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'none'")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	h.Set("Pragma", "no-cache")
}
