package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Logging registra cada requisição com método, rota, status e duração.
// O IP logado segue a mesma resolução do rate limiter por IP.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lw := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		inicio := time.Now()

		next.ServeHTTP(lw, r)

		entrada := log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", lw.Status()).
			Dur("duration", time.Since(inicio)).
			Str("ip", realIPFromRequest(r))

		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			entrada = entrada.Str("request_id", reqID)
		}
		if ua := r.Header.Get("User-Agent"); ua != "" {
			entrada = entrada.Str("user_agent", ua)
		}

		entrada.Msg("http_request")
	})
}
