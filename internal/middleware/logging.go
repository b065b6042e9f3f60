package middleware

import (
	"net/http"

	log "github.com/sirupsen/logrus"
)

func LogRequest(clientIPs ClientIPReader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userAgent := r.Header.Get("User-Agent")
			ip, _ := clientIPs.ClientIP(r)
			log.Tracef(" ====> request [%s] path: [%s] [IP: %s] [UA: %s]", r.Method, r.URL.Path, ip, userAgent)
			next.ServeHTTP(w, r)
		})
	}
}
