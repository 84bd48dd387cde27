package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/redesaude/portal/internal/auth"
	"github.com/redesaude/portal/internal/config"
	"github.com/redesaude/portal/internal/http/middleware"
	"github.com/redesaude/portal/internal/perm"
	"github.com/redesaude/portal/internal/ratelimit"
	"github.com/redesaude/portal/internal/repo"
	"github.com/redesaude/portal/internal/service"
	"github.com/redesaude/portal/internal/sessao"
)

type repoStub struct {
	porCPF    map[string]repo.Usuario
	porID     map[uuid.UUID]repo.Usuario
	vinculos  map[uuid.UUID][]repo.Vinculo
	registros map[string]repo.SessaoRegistro
}

func novoRepoStub() *repoStub {
	return &repoStub{
		porCPF:    make(map[string]repo.Usuario),
		porID:     make(map[uuid.UUID]repo.Usuario),
		vinculos:  make(map[uuid.UUID][]repo.Vinculo),
		registros: make(map[string]repo.SessaoRegistro),
	}
}

func (r *repoStub) GetUsuarioByCPF(ctx context.Context, cpf string) (repo.Usuario, error) {
	u, ok := r.porCPF[cpf]
	if !ok {
		return repo.Usuario{}, repo.ErrNotFound
	}
	return u, nil
}

func (r *repoStub) GetUsuarioByID(ctx context.Context, id uuid.UUID) (repo.Usuario, error) {
	u, ok := r.porID[id]
	if !ok {
		return repo.Usuario{}, repo.ErrNotFound
	}
	return u, nil
}

func (r *repoStub) ListVinculosAtivos(ctx context.Context, usuarioID uuid.UUID) ([]repo.Vinculo, error) {
	var ativos []repo.Vinculo
	for _, v := range r.vinculos[usuarioID] {
		if v.Ativo {
			ativos = append(ativos, v)
		}
	}
	return ativos, nil
}

func (r *repoStub) GetVinculo(ctx context.Context, id int64) (repo.Vinculo, error) {
	for _, lista := range r.vinculos {
		for _, v := range lista {
			if v.ID == id {
				return v, nil
			}
		}
	}
	return repo.Vinculo{}, repo.ErrNotFound
}

func (r *repoStub) UpdateUltimoAcesso(ctx context.Context, usuarioID uuid.UUID, momento time.Time) error {
	return nil
}

func (r *repoStub) UpdateSenha(ctx context.Context, usuarioID uuid.UUID, senhaHash string) error {
	u, ok := r.porID[usuarioID]
	if !ok {
		return repo.ErrNotFound
	}
	u.SenhaHash = senhaHash
	r.porID[usuarioID] = u
	r.porCPF[u.CPF] = u
	return nil
}

func (r *repoStub) DesativarUsuario(ctx context.Context, usuarioID uuid.UUID) error {
	u, ok := r.porID[usuarioID]
	if !ok {
		return repo.ErrNotFound
	}
	u.Ativo = false
	r.porID[usuarioID] = u
	r.porCPF[u.CPF] = u
	return nil
}

func (r *repoStub) InsertSessaoRegistro(ctx context.Context, reg repo.SessaoRegistro) error {
	r.registros[reg.TokenHash] = reg
	return nil
}

func (r *repoStub) TouchSessaoRegistro(ctx context.Context, tokenHash string, momento time.Time) error {
	return nil
}

func (r *repoStub) DeleteSessaoRegistro(ctx context.Context, tokenHash string) error {
	delete(r.registros, tokenHash)
	return nil
}

func (r *repoStub) DeleteSessoesDoUsuario(ctx context.Context, usuarioID uuid.UUID, excetoHash string) error {
	for hash, reg := range r.registros {
		if hash != excetoHash && reg.UsuarioID == usuarioID {
			delete(r.registros, hash)
		}
	}
	return nil
}

func (r *repoStub) ListSessoesDoUsuario(ctx context.Context, usuarioID uuid.UUID) ([]repo.SessaoRegistro, error) {
	var saida []repo.SessaoRegistro
	for _, reg := range r.registros {
		if reg.UsuarioID == usuarioID {
			saida = append(saida, reg)
		}
	}
	return saida, nil
}

const (
	cpfTeste   = "52998224725"
	senhaTeste = "senha-forte-123"
)

func municipioPtr(id int) *int { return &id }

func montarAPI(t *testing.T, vinculos ...repo.Vinculo) http.Handler {
	t.Helper()

	hash, err := auth.Hash(senhaTeste)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	r := novoRepoStub()
	usuario := repo.Usuario{
		ID:        uuid.New(),
		CPF:       cpfTeste,
		Nome:      "Maria da Silva",
		SenhaHash: hash,
		Ativo:     true,
	}
	r.porCPF[usuario.CPF] = usuario
	r.porID[usuario.ID] = usuario
	for i := range vinculos {
		vinculos[i].UsuarioID = usuario.ID
	}
	r.vinculos[usuario.ID] = vinculos

	cfg := &config.Config{
		AllowOrigins:    []string{"http://localhost:3000"},
		RateLimitPublic: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
		RateLimitAuth:   config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
	}

	limite := ratelimit.NovoLimitador(ratelimit.NovoArmazenamentoMemoria(), 5, 15*time.Minute)
	gerente := sessao.NovoGerente(sessao.NovoArmazenamentoMemoria(), r, 4*time.Hour)
	servico := service.NewAuthService(r, limite, gerente)

	return NewRouter(cfg, nil, nil, servico, gerente)
}

func fazerLogin(t *testing.T, api http.Handler, cpf, senha string) *httptest.ResponseRecorder {
	t.Helper()

	corpo, _ := json.Marshal(map[string]string{"cpf": cpf, "senha": senha})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(corpo))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	return rec
}

func dadosResposta(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decodificar resposta: %v", err)
	}
	return envelope.Data
}

func cookieSessao(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.CookieSessao {
			return c
		}
	}
	t.Fatal("cookie de sessão não gravado")
	return nil
}

func TestLoginEndpoint(t *testing.T) {
	api := montarAPI(t, repo.Vinculo{ID: 1, Perfil: perm.PerfilMunicipal, MunicipioID: municipioPtr(4205407), Ativo: true})

	rec := fazerLogin(t, api, "529.982.247-25", senhaTeste)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, corpo: %s", rec.Code, rec.Body.String())
	}

	cookie := cookieSessao(t, rec)
	if cookie.Value == "" {
		t.Fatal("cookie sem token")
	}
	if !cookie.HttpOnly {
		t.Fatal("cookie de sessão precisa ser HttpOnly")
	}

	dados := dadosResposta(t, rec)
	if dados["csrf_token"] == "" {
		t.Fatal("csrf_token ausente na resposta")
	}
	if dados["precisa_selecao_vinculo"] != false {
		t.Fatal("vínculo único não exige seleção")
	}
	if _, ok := dados["vinculos"]; ok {
		t.Fatal("lista de vínculos só aparece quando há seleção pendente")
	}
}

func TestLoginEndpointComVariosVinculos(t *testing.T) {
	api := montarAPI(t,
		repo.Vinculo{ID: 1, Perfil: perm.PerfilMunicipal, MunicipioID: municipioPtr(4205407), Ativo: true},
		repo.Vinculo{ID: 2, Perfil: perm.PerfilRegional, Ativo: true},
	)

	rec := fazerLogin(t, api, cpfTeste, senhaTeste)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, corpo: %s", rec.Code, rec.Body.String())
	}

	dados := dadosResposta(t, rec)
	if dados["precisa_selecao_vinculo"] != true {
		t.Fatal("vários vínculos exigem seleção")
	}
	if dados["redirect"] != "/selecionar-vinculo" {
		t.Fatalf("redirect = %v", dados["redirect"])
	}
	vinculos, ok := dados["vinculos"].([]any)
	if !ok || len(vinculos) != 2 {
		t.Fatalf("vinculos = %v", dados["vinculos"])
	}
}

func TestLoginEndpointCredenciaisInvalidas(t *testing.T) {
	api := montarAPI(t, repo.Vinculo{ID: 1, Perfil: perm.PerfilMunicipal, MunicipioID: municipioPtr(4205407), Ativo: true})

	rec := fazerLogin(t, api, cpfTeste, "senha-errada")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, esperado 401", rec.Code)
	}
}

func TestLoginEndpointBloqueioPorTentativas(t *testing.T) {
	api := montarAPI(t, repo.Vinculo{ID: 1, Perfil: perm.PerfilMunicipal, MunicipioID: municipioPtr(4205407), Ativo: true})

	for i := 0; i < 5; i++ {
		fazerLogin(t, api, cpfTeste, "senha-errada")
	}

	rec := fazerLogin(t, api, cpfTeste, senhaTeste)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, esperado 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After ausente na resposta 429")
	}
}

func TestFluxoCompletoComSelecaoDeVinculo(t *testing.T) {
	api := montarAPI(t,
		repo.Vinculo{ID: 1, Perfil: perm.PerfilMunicipal, MunicipioID: municipioPtr(4205407), Ativo: true},
		repo.Vinculo{ID: 2, Perfil: perm.PerfilRegional, Ativo: true},
	)

	login := fazerLogin(t, api, cpfTeste, senhaTeste)
	if login.Code != http.StatusOK {
		t.Fatalf("login: status = %d", login.Code)
	}
	cookie := cookieSessao(t, login)
	csrf, _ := dadosResposta(t, login)["csrf_token"].(string)

	// Antes da seleção o CSRF já é exigido, mas a permissão não resolve.
	corpo, _ := json.Marshal(map[string]int64{"vinculo_id": 2})
	req := httptest.NewRequest(http.MethodPost, "/auth/vinculo", bytes.NewReader(corpo))
	req.AddCookie(cookie)
	req.Header.Set(middleware.HeaderCSRF, csrf)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("selecionar: status = %d, corpo: %s", rec.Code, rec.Body.String())
	}

	// Com o vínculo resolvido, /me reflete o perfil regional.
	reqMe := httptest.NewRequest(http.MethodGet, "/me", nil)
	reqMe.AddCookie(cookie)
	recMe := httptest.NewRecorder()
	api.ServeHTTP(recMe, reqMe)
	if recMe.Code != http.StatusOK {
		t.Fatalf("me: status = %d", recMe.Code)
	}
	dados := dadosResposta(t, recMe)
	if dados["precisa_selecao_vinculo"] != false {
		t.Fatal("seleção ainda pendente após escolha")
	}
}

func TestSelecionarVinculoForaDaSessaoRetorna403(t *testing.T) {
	api := montarAPI(t,
		repo.Vinculo{ID: 1, Perfil: perm.PerfilMunicipal, MunicipioID: municipioPtr(4205407), Ativo: true},
		repo.Vinculo{ID: 2, Perfil: perm.PerfilRegional, Ativo: true},
	)

	login := fazerLogin(t, api, cpfTeste, senhaTeste)
	cookie := cookieSessao(t, login)
	csrf, _ := dadosResposta(t, login)["csrf_token"].(string)

	corpo, _ := json.Marshal(map[string]int64{"vinculo_id": 99})
	req := httptest.NewRequest(http.MethodPost, "/auth/vinculo", bytes.NewReader(corpo))
	req.AddCookie(cookie)
	req.Header.Set(middleware.HeaderCSRF, csrf)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, esperado 403", rec.Code)
	}
}

func TestMutacaoSemCSRFRetorna403(t *testing.T) {
	api := montarAPI(t, repo.Vinculo{ID: 1, Perfil: perm.PerfilMunicipal, MunicipioID: municipioPtr(4205407), Ativo: true})

	login := fazerLogin(t, api, cpfTeste, senhaTeste)
	cookie := cookieSessao(t, login)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, esperado 403", rec.Code)
	}
}

func TestChecarSessao(t *testing.T) {
	api := montarAPI(t, repo.Vinculo{ID: 1, Perfil: perm.PerfilMunicipal, MunicipioID: municipioPtr(4205407), Ativo: true})

	// Sem cookie a rota responde 200 com valid=false, nunca erro.
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/sessao", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, esperado 200", rec.Code)
	}
	if dadosResposta(t, rec)["valid"] != false {
		t.Fatal("sessão inexistente reportada como válida")
	}

	login := fazerLogin(t, api, cpfTeste, senhaTeste)
	cookie := cookieSessao(t, login)

	req := httptest.NewRequest(http.MethodGet, "/auth/sessao", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	if dadosResposta(t, rec)["valid"] != true {
		t.Fatal("sessão válida reportada como inválida")
	}
}

func TestLogoutEncerraSessao(t *testing.T) {
	api := montarAPI(t, repo.Vinculo{ID: 1, Perfil: perm.PerfilMunicipal, MunicipioID: municipioPtr(4205407), Ativo: true})

	login := fazerLogin(t, api, cpfTeste, senhaTeste)
	cookie := cookieSessao(t, login)
	csrf, _ := dadosResposta(t, login)["csrf_token"].(string)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	req.Header.Set(middleware.HeaderCSRF, csrf)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: status = %d", rec.Code)
	}

	// O cookie voltou zerado e a sessão não existe mais.
	reqMe := httptest.NewRequest(http.MethodGet, "/me", nil)
	reqMe.AddCookie(cookie)
	recMe := httptest.NewRecorder()
	api.ServeHTTP(recMe, reqMe)
	if recMe.Code != http.StatusUnauthorized {
		t.Fatalf("sessão sobreviveu ao logout: status = %d", recMe.Code)
	}
}

func TestAlterarSenhaRejeitaSenhaFraca(t *testing.T) {
	api := montarAPI(t, repo.Vinculo{ID: 1, Perfil: perm.PerfilMunicipal, MunicipioID: municipioPtr(4205407), Ativo: true})

	login := fazerLogin(t, api, cpfTeste, senhaTeste)
	cookie := cookieSessao(t, login)
	csrf, _ := dadosResposta(t, login)["csrf_token"].(string)

	corpo, _ := json.Marshal(map[string]string{"senha_atual": senhaTeste, "senha_nova": "curta"})
	req := httptest.NewRequest(http.MethodPost, "/auth/senha", bytes.NewReader(corpo))
	req.AddCookie(cookie)
	req.Header.Set(middleware.HeaderCSRF, csrf)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, esperado 400", rec.Code)
	}
}

func TestRotaAdminExigePerfil(t *testing.T) {
	api := montarAPI(t, repo.Vinculo{ID: 1, Perfil: perm.PerfilUnidade, MunicipioID: municipioPtr(4205407), Ativo: true})

	login := fazerLogin(t, api, cpfTeste, senhaTeste)
	cookie := cookieSessao(t, login)

	req := httptest.NewRequest(http.MethodGet, "/admin/usuarios/"+uuid.NewString()+"/sessoes", nil)
	req.AddCookie(cookie)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, esperado 403", rec.Code)
	}
}
