package middleware

import (
	"context"
	"net/http"
	"strconv"
)

// EscopoMunicipio valida o município solicitado contra o vínculo ativo.
// Esta é a fronteira de multi-tenancy: todo módulo de negócio que filtra por
// município monta suas rotas atrás deste middleware.
func EscopoMunicipio(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := GetSessao(r.Context())
		if s == nil {
			writeError(w, http.StatusUnauthorized, "AUTH", "sessão ausente")
			return
		}
		if s.PendenteVinculo() {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "seleção de vínculo pendente")
			return
		}

		raw := r.Header.Get("X-Municipio")
		if raw == "" {
			raw = r.URL.Query().Get("municipio_id")
		}
		if raw == "" {
			writeError(w, http.StatusBadRequest, "VALIDATION", "município não informado")
			return
		}

		municipioID, err := strconv.Atoi(raw)
		if err != nil || municipioID <= 0 {
			writeError(w, http.StatusBadRequest, "VALIDATION", "município inválido")
			return
		}

		if !s.AcessaMunicipio(municipioID) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "município fora do escopo do vínculo")
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyMunicipio, municipioID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetMunicipio retorna o município validado para a requisição.
func GetMunicipio(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(ContextKeyMunicipio).(int)
	return id, ok
}
