package shared

import (
	"net/http"
	"strings"

	"github.com/go-chi/httprate"
)

// RateLimitKey buckets requests per signed-in user, falling back to the client IP.
func RateLimitKey(r *http.Request) (string, error) {
	sess := SessionFromContext(r.Context())
	if sess != nil {
		if user := strings.TrimSpace(sess.User()); user != "" {
			return "user:" + user, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

// TooManyRequests is the limit handler shared by every rate-limited route group.
func TooManyRequests(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
}
