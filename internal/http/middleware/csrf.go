package middleware

import (
	"net/http"

	"github.com/redesaude/portal/internal/auth"
)

// HeaderCSRF transporta o token devolvido no login; o cliente o ecoa em
// toda requisição que muda estado.
const HeaderCSRF = "X-CSRF-Token"

// CSRF rejeita requisições mutadoras cujo token não confere com o da
// sessão. Deve rodar depois de Auth.
func CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		s := GetSessao(r.Context())
		if s == nil {
			writeError(w, http.StatusUnauthorized, "AUTH", "sessão ausente")
			return
		}

		if !auth.CompararCSRF(r.Header.Get(HeaderCSRF), s.TokenCSRF) {
			writeError(w, http.StatusForbidden, "CSRF", "token CSRF inválido")
			return
		}

		next.ServeHTTP(w, r)
	})
}
