package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/atinyakov/GraphPaste/internal/service"
)

// Credentials records the origin of the request in its context as a
// service.Caller: remote address, user agent, all request headers and the
// bearer token, if any. It never rejects a request; resolvers decide what
// an anonymous caller may do.
//
// The address is taken from RemoteAddr, so chi's RealIP should run first
// when the server sits behind a proxy.
func Credentials(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := &service.Caller{
			Token:     BearerToken(r.Header.Get("Authorization")),
			IPAddress: remoteIP(r.RemoteAddr),
			UserAgent: r.UserAgent(),
			Headers:   flatten(r.Header),
		}
		next.ServeHTTP(w, r.WithContext(service.WithCaller(r.Context(), caller)))
	})
}

// BearerToken extracts the token from an Authorization header value.
// Returns an empty string if the scheme is not Bearer.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func remoteIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func flatten(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = strings.Join(v, ", ")
		}
	}
	return out
}
