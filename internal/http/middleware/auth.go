package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/redesaude/portal/internal/perm"
	"github.com/redesaude/portal/internal/sessao"
)

type contextKey string

const (
	ContextKeySessao    contextKey = "sessao"
	ContextKeyMunicipio contextKey = "municipio"
)

// CookieSessao é o nome do cookie que carrega o token opaco de sessão.
const CookieSessao = "portal_sessao"

type validadorSessao interface {
	Validar(ctx context.Context, token string) (*sessao.Sessao, error)
}

// Auth valida a sessão do cookie e a injeta no contexto. Toda rota
// privilegiada passa por aqui; a validação reconfere inatividade e situação
// da conta a cada requisição, nunca só no login.
func Auth(sessoes validadorSessao) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(CookieSessao)
			if err != nil || cookie.Value == "" {
				writeError(w, http.StatusUnauthorized, "AUTH", "sessão ausente")
				return
			}

			s, err := sessoes.Validar(r.Context(), cookie.Value)
			if err != nil {
				if errors.Is(err, sessao.ErrSessaoExpirada) {
					writeError(w, http.StatusUnauthorized, "SESSAO_EXPIRADA", "sessão expirada")
					return
				}
				log.Error().Err(err).Msg("auth: falha ao validar sessão")
				writeError(w, http.StatusInternalServerError, "INTERNAL", "erro interno")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySessao, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSessao recupera a sessão do contexto.
func GetSessao(ctx context.Context) *sessao.Sessao {
	s, _ := ctx.Value(ContextKeySessao).(*sessao.Sessao)
	return s
}

// RequirePermissao nega a requisição quando o vínculo ativo não cobre
// (recurso, ação). Sessão pendente de seleção não resolve permissão alguma.
func RequirePermissao(recurso perm.Recurso, acao perm.Acao) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
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
			if !s.Permitido(recurso, acao) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "acesso negado")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": nil,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
