package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/redesaude/portal/internal/audit"
	"github.com/redesaude/portal/internal/config"
	httpmiddleware "github.com/redesaude/portal/internal/http/middleware"
	"github.com/redesaude/portal/internal/perm"
	"github.com/redesaude/portal/internal/repo"
	"github.com/redesaude/portal/internal/service"
	"github.com/redesaude/portal/internal/sessao"
	"github.com/redesaude/portal/internal/util"
)

type Handler struct {
	cfg           *config.Config
	pool          *pgxpool.Pool
	redis         *redis.Client
	authService   *service.AuthService
	sessoes       *sessao.Gerente
	publicLimiter *httpmiddleware.RateLimiter
	authLimiter   *httpmiddleware.RateLimiter
	devCookies    bool
}

// NewRouter devolve roteador configurado.
func NewRouter(cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client, authService *service.AuthService, sessoes *sessao.Gerente) http.Handler {
	devCookies := false
	for _, origin := range cfg.AllowOrigins {
		if strings.Contains(origin, "localhost") {
			devCookies = true
			break
		}
	}

	h := &Handler{
		cfg:           cfg,
		pool:          pool,
		redis:         redisClient,
		authService:   authService,
		sessoes:       sessoes,
		publicLimiter: httpmiddleware.NewRateLimiter(cfg.RateLimitPublic.RequestsPerSecond, cfg.RateLimitPublic.Burst),
		authLimiter:   httpmiddleware.NewRateLimiter(cfg.RateLimitAuth.RequestsPerSecond, cfg.RateLimitAuth.Burst),
		devCookies:    devCookies,
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))

	r.Group(func(public chi.Router) {
		public.Use(httpmiddleware.IPRateLimit(h.publicLimiter))

		public.Get("/health", h.Health)
		public.Get("/ready", h.Ready)

		public.Post("/auth/login", h.Login)
		public.Get("/auth/sessao", h.ChecarSessao)
	})

	r.Group(func(private chi.Router) {
		private.Use(httpmiddleware.Auth(h.sessoes))
		private.Use(httpmiddleware.UserRateLimit(h.authLimiter))
		private.Use(httpmiddleware.CSRF)

		private.Get("/me", h.Me)
		private.Post("/auth/vinculo", h.SelecionarVinculo)
		private.Post("/auth/logout", h.Logout)
		private.Post("/auth/senha", h.AlterarSenha)

		private.Group(func(admin chi.Router) {
			admin.Route("/admin/usuarios/{id}", func(u chi.Router) {
				u.With(httpmiddleware.RequirePermissao(perm.RecursoSessoes, perm.AcaoLer)).
					Get("/sessoes", h.ListarSessoesUsuario)
				u.With(httpmiddleware.RequirePermissao(perm.RecursoSessoes, perm.AcaoExcluir)).
					Post("/sessoes/encerrar", h.EncerrarSessoesUsuario)
				u.With(httpmiddleware.RequirePermissao(perm.RecursoUsuarios, perm.AcaoAtualizar)).
					Post("/desativar", h.DesativarUsuario)
			})
		})
	})

	return r
}

// Health responde status simples.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready valida conexões com Postgres e Redis.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbErr := h.pool.Ping(ctx)
	redisErr := h.redis.Ping(ctx).Err()

	if dbErr != nil || redisErr != nil {
		WriteError(w, http.StatusServiceUnavailable, "INTERNAL", "dependências indisponíveis", map[string]any{
			"db":    errorString(dbErr),
			"redis": errorString(redisErr),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Login autentica CPF + senha e grava o cookie de sessão.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		CPF   string `json:"cpf"`
		Senha string `json:"senha"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	if strings.TrimSpace(payload.CPF) == "" || strings.TrimSpace(payload.Senha) == "" {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "CPF e senha são obrigatórios", nil)
		return
	}

	resultado, err := h.authService.Login(r.Context(), payload.CPF, payload.Senha, h.metaSessao(r))
	if err != nil {
		h.handleAuthError(w, err)
		return
	}

	h.setSessaoCookie(w, resultado.Token)

	resposta := map[string]any{
		"csrf_token":              resultado.Sessao.TokenCSRF,
		"usuario":                 snapshotUsuario(resultado.Sessao),
		"precisa_selecao_vinculo": resultado.PrecisaSelecionarVinculo,
	}
	if resultado.PrecisaSelecionarVinculo {
		resposta["redirect"] = "/selecionar-vinculo"
		resposta["vinculos"] = snapshotVinculos(resultado.Sessao.Vinculos)
	}

	WriteJSON(w, http.StatusOK, resposta)
}

// SelecionarVinculo resolve o vínculo ativo da sessão.
func (h *Handler) SelecionarVinculo(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		VinculoID int64 `json:"vinculo_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	if payload.VinculoID <= 0 {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "vinculo_id é obrigatório", nil)
		return
	}

	s := httpmiddleware.GetSessao(r.Context())
	if err := h.authService.SelecionarVinculo(r.Context(), s, payload.VinculoID, h.metaAudit(r)); err != nil {
		if errors.Is(err, sessao.ErrVinculoNaoAutorizado) {
			WriteError(w, http.StatusForbidden, "VINCULO", "vínculo não autorizado para esta sessão", nil)
			return
		}
		if errors.Is(err, sessao.ErrSessaoExpirada) {
			WriteError(w, http.StatusUnauthorized, "SESSAO_EXPIRADA", "sessão expirada", nil)
			return
		}
		log.Error().Err(err).Msg("seleção de vínculo: erro interno")
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"vinculo": snapshotVinculo(*s.VinculoAtivo),
		"usuario": snapshotUsuario(s),
	})
}

// ChecarSessao informa a liveness da sessão sem nunca responder erro:
// clientes usam esta rota em polling.
func (h *Handler) ChecarSessao(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(httpmiddleware.CookieSessao)
	if err != nil || cookie.Value == "" {
		WriteJSON(w, http.StatusOK, map[string]any{"valid": false, "usuario": nil})
		return
	}

	s, err := h.sessoes.Validar(r.Context(), cookie.Value)
	if err != nil {
		WriteJSON(w, http.StatusOK, map[string]any{"valid": false, "usuario": nil})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"valid": true, "usuario": snapshotUsuario(s)})
}

// Logout encerra a sessão e limpa o cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	s := httpmiddleware.GetSessao(r.Context())
	if err := h.authService.Logout(r.Context(), s, h.metaAudit(r)); err != nil {
		log.Error().Err(err).Msg("logout: erro ao encerrar sessão")
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
		return
	}

	h.clearSessaoCookie(w)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// AlterarSenha troca a senha do usuário autenticado.
func (h *Handler) AlterarSenha(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SenhaAtual string `json:"senha_atual"`
		SenhaNova  string `json:"senha_nova"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	s := httpmiddleware.GetSessao(r.Context())
	err := h.authService.AlterarSenha(r.Context(), s, payload.SenhaAtual, payload.SenhaNova, h.metaAudit(r))
	if err != nil {
		if errors.Is(err, service.ErrCredenciaisInvalidas) {
			WriteError(w, http.StatusUnauthorized, "AUTH", "senha atual incorreta", nil)
			return
		}
		if errors.Is(err, util.ErrSenhaFraca) {
			WriteError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
			return
		}
		log.Error().Err(err).Msg("alterar senha: erro interno")
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "senha_alterada"})
}

// Me retorna o snapshot da sessão autenticada.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	s := httpmiddleware.GetSessao(r.Context())
	WriteJSON(w, http.StatusOK, map[string]any{
		"usuario":                 snapshotUsuario(s),
		"vinculos":                snapshotVinculos(s.Vinculos),
		"permissoes":              s.Permissoes,
		"precisa_selecao_vinculo": s.PendenteVinculo(),
	})
}

// ListarSessoesUsuario lista os registros de sessão de um usuário (admin).
func (h *Handler) ListarSessoesUsuario(w http.ResponseWriter, r *http.Request) {
	usuarioID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	registros, err := h.authService.ListarSessoes(r.Context(), usuarioID)
	if err != nil {
		log.Error().Err(err).Msg("listar sessões: erro interno")
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
		return
	}

	saida := make([]map[string]any, 0, len(registros))
	for _, reg := range registros {
		saida = append(saida, map[string]any{
			"ip":               reg.IP,
			"user_agent":       reg.UserAgent,
			"criada_em":        reg.CriadaEm,
			"ultima_atividade": reg.UltimaAtividade,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"sessoes": saida})
}

// EncerrarSessoesUsuario força o fim de todas as sessões de um usuário (admin).
func (h *Handler) EncerrarSessoesUsuario(w http.ResponseWriter, r *http.Request) {
	usuarioID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	removidas, err := h.authService.EncerrarSessoes(r.Context(), usuarioID, h.metaAudit(r))
	if err != nil {
		log.Error().Err(err).Msg("encerrar sessões: erro interno")
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"sessoes_encerradas": removidas})
}

// DesativarUsuario desliga a conta e derruba as sessões dela (admin).
func (h *Handler) DesativarUsuario(w http.ResponseWriter, r *http.Request) {
	usuarioID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	if err := h.authService.DesativarUsuario(r.Context(), usuarioID, h.metaAudit(r)); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "usuário não encontrado", nil)
			return
		}
		log.Error().Err(err).Msg("desativar usuário: erro interno")
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "desativado"})
}

func (h *Handler) handleAuthError(w http.ResponseWriter, err error) {
	var limite *service.ErrLimiteTentativas
	switch {
	case errors.Is(err, service.ErrIdentidadeInvalida):
		WriteError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	case errors.As(err, &limite):
		WriteRateLimited(w, limite.ResetEm)
	case errors.Is(err, service.ErrCredenciaisInvalidas):
		WriteError(w, http.StatusUnauthorized, "AUTH", err.Error(), nil)
	case errors.Is(err, service.ErrContaDesativada):
		WriteError(w, http.StatusForbidden, "CONTA_DESATIVADA", err.Error(), nil)
	case errors.Is(err, service.ErrSemVinculo):
		WriteError(w, http.StatusForbidden, "SEM_VINCULO", err.Error(), nil)
	default:
		log.Error().Err(err).Msg("login: erro interno")
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro ao autenticar", nil)
	}
}

func (h *Handler) metaSessao(r *http.Request) sessao.Meta {
	return sessao.Meta{IP: r.RemoteAddr, UserAgent: r.Header.Get("User-Agent")}
}

func (h *Handler) metaAudit(r *http.Request) audit.Meta {
	return audit.Meta{IP: r.RemoteAddr, UserAgent: r.Header.Get("User-Agent")}
}

func (h *Handler) setSessaoCookie(w http.ResponseWriter, token string) {
	secure := !h.devCookies
	sameSite := http.SameSiteStrictMode
	if h.devCookies {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     httpmiddleware.CookieSessao,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	})
}

func (h *Handler) clearSessaoCookie(w http.ResponseWriter) {
	secure := !h.devCookies
	sameSite := http.SameSiteStrictMode
	if h.devCookies {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     httpmiddleware.CookieSessao,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	})
}

func snapshotUsuario(s *sessao.Sessao) map[string]any {
	snapshot := map[string]any{
		"id":     s.UsuarioID.String(),
		"nome":   s.NomeUsuario,
		"estado": string(s.Estado),
	}
	if s.VinculoAtivo != nil {
		snapshot["vinculo"] = snapshotVinculo(*s.VinculoAtivo)
	}
	return snapshot
}

func snapshotVinculos(vinculos []repo.Vinculo) []map[string]any {
	saida := make([]map[string]any, 0, len(vinculos))
	for _, v := range vinculos {
		saida = append(saida, snapshotVinculo(v))
	}
	return saida
}

func snapshotVinculo(v repo.Vinculo) map[string]any {
	snapshot := map[string]any{
		"id":     v.ID,
		"perfil": string(v.Perfil),
	}
	if v.MunicipioID != nil {
		snapshot["municipio_id"] = *v.MunicipioID
	}
	return snapshot
}
