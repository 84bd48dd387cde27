package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/redesaude/portal/internal/perm"
	"github.com/redesaude/portal/internal/repo"
	"github.com/redesaude/portal/internal/sessao"
)

type validadorStub struct {
	sessoes map[string]*sessao.Sessao
}

func (v *validadorStub) Validar(ctx context.Context, token string) (*sessao.Sessao, error) {
	s, ok := v.sessoes[token]
	if !ok {
		return nil, sessao.ErrSessaoExpirada
	}
	return s, nil
}

func municipioPtr(id int) *int { return &id }

func sessaoAtiva(perfil perm.Perfil, municipio *int) *sessao.Sessao {
	vinculo := repo.Vinculo{ID: 1, Perfil: perfil, MunicipioID: municipio, Ativo: true}
	return &sessao.Sessao{
		UsuarioID:    uuid.New(),
		Estado:       sessao.EstadoAtiva,
		Vinculos:     []repo.Vinculo{vinculo},
		VinculoAtivo: &vinculo,
		Permissoes:   perm.Snapshot(perfil),
		TokenCSRF:    "csrf-de-teste",
	}
}

func sessaoPendente() *sessao.Sessao {
	return &sessao.Sessao{
		UsuarioID: uuid.New(),
		Estado:    sessao.EstadoPendenteVinculo,
		Vinculos: []repo.Vinculo{
			{ID: 1, Perfil: perm.PerfilMunicipal, MunicipioID: municipioPtr(4205407), Ativo: true},
			{ID: 2, Perfil: perm.PerfilRegional, Ativo: true},
		},
		TokenCSRF: "csrf-de-teste",
	}
}

func proximoOK() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func comSessao(r *http.Request, s *sessao.Sessao) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), ContextKeySessao, s))
}

func codigoErro(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var corpo struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &corpo); err != nil {
		t.Fatalf("decodificar corpo: %v", err)
	}
	return corpo.Error.Code
}

func TestAuthSemCookie(t *testing.T) {
	handler := Auth(&validadorStub{})(proximoOK())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, esperado 401", rec.Code)
	}
	if codigoErro(t, rec) != "AUTH" {
		t.Fatalf("código = %s, esperado AUTH", codigoErro(t, rec))
	}
}

func TestAuthTokenInvalido(t *testing.T) {
	handler := Auth(&validadorStub{sessoes: map[string]*sessao.Sessao{}})(proximoOK())

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: CookieSessao, Value: "token-morto"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, esperado 401", rec.Code)
	}
	if codigoErro(t, rec) != "SESSAO_EXPIRADA" {
		t.Fatalf("código = %s, esperado SESSAO_EXPIRADA", codigoErro(t, rec))
	}
}

func TestAuthInjetaSessao(t *testing.T) {
	s := sessaoAtiva(perm.PerfilMunicipal, municipioPtr(4205407))
	validador := &validadorStub{sessoes: map[string]*sessao.Sessao{"token-bom": s}}

	var capturada *sessao.Sessao
	handler := Auth(validador)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturada = GetSessao(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: CookieSessao, Value: "token-bom"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, esperado 204", rec.Code)
	}
	if capturada != s {
		t.Fatal("sessão não injetada no contexto")
	}
}

func TestRequirePermissao(t *testing.T) {
	casos := []struct {
		nome   string
		sessao *sessao.Sessao
		status int
	}{
		{"perfil autorizado", sessaoAtiva(perm.PerfilMunicipal, municipioPtr(4205407)), http.StatusNoContent},
		{"perfil sem a permissão", sessaoAtiva(perm.PerfilUnidade, municipioPtr(4205407)), http.StatusForbidden},
		{"seleção pendente", sessaoPendente(), http.StatusForbidden},
		{"sem sessão", nil, http.StatusUnauthorized},
	}

	handler := RequirePermissao(perm.RecursoEquipamentos, perm.AcaoExportar)(proximoOK())

	for _, caso := range casos {
		t.Run(caso.nome, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/equipamentos", nil)
			if caso.sessao != nil {
				req = comSessao(req, caso.sessao)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != caso.status {
				t.Fatalf("status = %d, esperado %d", rec.Code, caso.status)
			}
		})
	}
}

func TestCSRF(t *testing.T) {
	s := sessaoAtiva(perm.PerfilMunicipal, municipioPtr(4205407))
	handler := CSRF(proximoOK())

	t.Run("métodos de leitura passam sem token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, comSessao(httptest.NewRequest(http.MethodGet, "/me", nil), s))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, esperado 204", rec.Code)
		}
	})

	t.Run("mutação sem token é negada", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, comSessao(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), s))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, esperado 403", rec.Code)
		}
		if codigoErro(t, rec) != "CSRF" {
			t.Fatalf("código = %s, esperado CSRF", codigoErro(t, rec))
		}
	})

	t.Run("mutação com token errado é negada", func(t *testing.T) {
		req := comSessao(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), s)
		req.Header.Set(HeaderCSRF, "token-forjado")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, esperado 403", rec.Code)
		}
	})

	t.Run("mutação com token da sessão passa", func(t *testing.T) {
		req := comSessao(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), s)
		req.Header.Set(HeaderCSRF, s.TokenCSRF)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, esperado 204", rec.Code)
		}
	})
}

func TestEscopoMunicipio(t *testing.T) {
	casos := []struct {
		nome      string
		sessao    *sessao.Sessao
		municipio string
		status    int
	}{
		{"municipal no próprio município", sessaoAtiva(perm.PerfilMunicipal, municipioPtr(4205407)), "4205407", http.StatusNoContent},
		{"municipal em município alheio", sessaoAtiva(perm.PerfilMunicipal, municipioPtr(4205407)), "3550308", http.StatusForbidden},
		{"regional em qualquer município", sessaoAtiva(perm.PerfilRegional, nil), "3550308", http.StatusNoContent},
		{"município ausente", sessaoAtiva(perm.PerfilMunicipal, municipioPtr(4205407)), "", http.StatusBadRequest},
		{"município não numérico", sessaoAtiva(perm.PerfilMunicipal, municipioPtr(4205407)), "abc", http.StatusBadRequest},
		{"seleção pendente", sessaoPendente(), "4205407", http.StatusForbidden},
	}

	for _, caso := range casos {
		t.Run(caso.nome, func(t *testing.T) {
			var capturado int
			handler := EscopoMunicipio(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				capturado, _ = GetMunicipio(r.Context())
				w.WriteHeader(http.StatusNoContent)
			}))

			req := comSessao(httptest.NewRequest(http.MethodGet, "/equipamentos", nil), caso.sessao)
			if caso.municipio != "" {
				req.Header.Set("X-Municipio", caso.municipio)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != caso.status {
				t.Fatalf("status = %d, esperado %d", rec.Code, caso.status)
			}
			if caso.status == http.StatusNoContent && capturado == 0 {
				t.Fatal("município validado não injetado no contexto")
			}
		})
	}
}

func TestEscopoMunicipioViaQuery(t *testing.T) {
	handler := EscopoMunicipio(proximoOK())

	req := comSessao(httptest.NewRequest(http.MethodGet, "/equipamentos?municipio_id=4205407", nil), sessaoAtiva(perm.PerfilMunicipal, municipioPtr(4205407)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, esperado 204", rec.Code)
	}
}
