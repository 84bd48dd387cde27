package sessao

import (
	"time"

	"github.com/google/uuid"

	"github.com/redesaude/portal/internal/perm"
	"github.com/redesaude/portal/internal/repo"
)

// Estado da máquina de sessão. Encerrada não aparece aqui: sessão encerrada
// é sessão removida do store.
type Estado string

const (
	// EstadoPendenteVinculo bloqueia toda operação privilegiada até a
	// seleção de vínculo. Pulado quando o usuário tem vínculo único.
	EstadoPendenteVinculo Estado = "PENDENTE_VINCULO"
	// EstadoAtiva indica vínculo resolvido e snapshot de permissões pronto.
	EstadoAtiva Estado = "ATIVA"
)

// Sessao é o estado vivo entre requisições. O token cru nunca é serializado:
// o store indexa pelo hash e o cliente guarda o valor cru no cookie.
type Sessao struct {
	TokenHash       string           `json:"-"`
	UsuarioID       uuid.UUID        `json:"usuario_id"`
	NomeUsuario     string           `json:"nome_usuario"`
	Estado          Estado           `json:"estado"`
	Vinculos        []repo.Vinculo   `json:"vinculos"`
	VinculoAtivo    *repo.Vinculo    `json:"vinculo_ativo"`
	Permissoes      []perm.Permissao `json:"permissoes"`
	TokenCSRF       string           `json:"token_csrf"`
	CriadaEm        time.Time        `json:"criada_em"`
	UltimaAtividade time.Time        `json:"ultima_atividade"`
	IP              string           `json:"ip"`
	UserAgent       string           `json:"user_agent"`
}

// Ativa reporta se a sessão já resolveu o vínculo.
func (s *Sessao) Ativa() bool {
	return s.Estado == EstadoAtiva && s.VinculoAtivo != nil
}

// PendenteVinculo reporta se a seleção de vínculo ainda é obrigatória.
func (s *Sessao) PendenteVinculo() bool {
	return s.Estado == EstadoPendenteVinculo
}

// Permitido consulta o snapshot da sessão. Sessão pendente não resolve
// permissão alguma.
func (s *Sessao) Permitido(recurso perm.Recurso, acao perm.Acao) bool {
	if !s.Ativa() {
		return false
	}
	return perm.Permitido(s.VinculoAtivo.Perfil, recurso, acao)
}

// AcessaMunicipio aplica o escopo territorial do vínculo ativo.
func (s *Sessao) AcessaMunicipio(municipioID int) bool {
	if !s.Ativa() {
		return false
	}
	return perm.AcessaMunicipio(s.VinculoAtivo.Perfil, s.VinculoAtivo.MunicipioID, municipioID)
}
