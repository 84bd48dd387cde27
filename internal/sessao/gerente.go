package sessao

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/redesaude/portal/internal/auth"
	"github.com/redesaude/portal/internal/perm"
	"github.com/redesaude/portal/internal/repo"
)

var (
	// ErrSessaoExpirada cobre token desconhecido, inatividade excedida e
	// conta desativada. Propositalmente um erro só: o cliente não descobre
	// qual das causas derrubou a sessão.
	ErrSessaoExpirada = errors.New("sessão expirada")
	// ErrVinculoNaoAutorizado indica seleção de vínculo que a sessão não possui.
	ErrVinculoNaoAutorizado = errors.New("vínculo não autorizado")
)

type contasRepo interface {
	GetUsuarioByID(ctx context.Context, id uuid.UUID) (repo.Usuario, error)
	GetVinculo(ctx context.Context, id int64) (repo.Vinculo, error)
	InsertSessaoRegistro(ctx context.Context, reg repo.SessaoRegistro) error
	TouchSessaoRegistro(ctx context.Context, tokenHash string, momento time.Time) error
	DeleteSessaoRegistro(ctx context.Context, tokenHash string) error
	DeleteSessoesDoUsuario(ctx context.Context, usuarioID uuid.UUID, excetoHash string) error
	ListSessoesDoUsuario(ctx context.Context, usuarioID uuid.UUID) ([]repo.SessaoRegistro, error)
}

// Gerente é o dono do ciclo de vida das sessões. O store é a autoridade da
// decisão por requisição; o espelho em Postgres existe para listagem e
// encerramento remoto.
type Gerente struct {
	store       Armazenamento
	contas      contasRepo
	inatividade time.Duration
}

// Meta descreve o cliente que originou a sessão.
type Meta struct {
	IP        string
	UserAgent string
}

// NovoGerente cria o gerente com o tempo máximo de inatividade.
func NovoGerente(store Armazenamento, contas contasRepo, inatividade time.Duration) *Gerente {
	return &Gerente{store: store, contas: contas, inatividade: inatividade}
}

// Criar materializa a sessão pós-autenticação. Token e CSRF são sempre
// regenerados, o que impede fixação de sessão. Com vínculo único o estado
// já nasce ativo, com snapshot resolvido; com vários, nasce pendente.
func (g *Gerente) Criar(ctx context.Context, usuario repo.Usuario, vinculos []repo.Vinculo, meta Meta) (*Sessao, string, error) {
	token, tokenHash, err := auth.NovoTokenSessao()
	if err != nil {
		return nil, "", err
	}
	tokenCSRF, err := auth.NovoTokenCSRF()
	if err != nil {
		return nil, "", err
	}

	agora := time.Now().UTC()
	s := &Sessao{
		TokenHash:       tokenHash,
		UsuarioID:       usuario.ID,
		NomeUsuario:     usuario.Nome,
		Estado:          EstadoPendenteVinculo,
		Vinculos:        vinculos,
		TokenCSRF:       tokenCSRF,
		CriadaEm:        agora,
		UltimaAtividade: agora,
		IP:              meta.IP,
		UserAgent:       meta.UserAgent,
	}

	if len(vinculos) == 1 {
		ativo := vinculos[0]
		s.VinculoAtivo = &ativo
		s.Estado = EstadoAtiva
		s.Permissoes = perm.Snapshot(ativo.Perfil)
	}

	if err := g.store.Salvar(ctx, s, g.inatividade); err != nil {
		return nil, "", err
	}

	if err := g.contas.InsertSessaoRegistro(ctx, repo.SessaoRegistro{
		TokenHash:       tokenHash,
		UsuarioID:       usuario.ID,
		IP:              meta.IP,
		UserAgent:       meta.UserAgent,
		CriadaEm:        agora,
		UltimaAtividade: agora,
	}); err != nil {
		// O espelho não é autoridade; a sessão segue válida sem ele.
		log.Error().Err(err).Msg("sessão: falha ao gravar espelho durável")
	}

	return s, token, nil
}

// Validar é chamado antes de toda operação privilegiada e falha fechado.
// Reconfere a conta na fonte a cada chamada: um administrador pode ter
// desativado o usuário no meio da sessão.
func (g *Gerente) Validar(ctx context.Context, token string) (*Sessao, error) {
	tokenHash := auth.HashToken(token)

	s, err := g.store.Carregar(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNaoEncontrada) {
			return nil, ErrSessaoExpirada
		}
		return nil, err
	}

	agora := time.Now().UTC()
	if agora.Sub(s.UltimaAtividade) > g.inatividade {
		g.descartar(ctx, s)
		return nil, ErrSessaoExpirada
	}

	usuario, err := g.contas.GetUsuarioByID(ctx, s.UsuarioID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			g.descartar(ctx, s)
			return nil, ErrSessaoExpirada
		}
		return nil, err
	}
	if !usuario.Ativo {
		g.descartar(ctx, s)
		return nil, ErrSessaoExpirada
	}

	// Última atividade só avança.
	if agora.After(s.UltimaAtividade) {
		s.UltimaAtividade = agora
	}
	// Renovação condicional: se um encerramento removeu a sessão entre o
	// Carregar acima e aqui, a escrita não pode ressuscitá-la.
	if err := g.store.Renovar(ctx, s, g.inatividade); err != nil {
		if errors.Is(err, ErrNaoEncontrada) {
			return nil, ErrSessaoExpirada
		}
		return nil, err
	}
	if err := g.contas.TouchSessaoRegistro(ctx, tokenHash, s.UltimaAtividade); err != nil {
		log.Error().Err(err).Msg("sessão: falha ao renovar espelho durável")
	}

	return s, nil
}

// SelecionarVinculo resolve o vínculo ativo da sessão. O vínculo precisa
// estar na lista carregada no login e continuar ativo na fonte. Reselecionar
// o mesmo vínculo é aceito e apenas renova a atividade.
func (g *Gerente) SelecionarVinculo(ctx context.Context, s *Sessao, vinculoID int64) error {
	var escolhido *repo.Vinculo
	for i := range s.Vinculos {
		if s.Vinculos[i].ID == vinculoID {
			escolhido = &s.Vinculos[i]
			break
		}
	}
	if escolhido == nil {
		return ErrVinculoNaoAutorizado
	}

	atual, err := g.contas.GetVinculo(ctx, vinculoID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrVinculoNaoAutorizado
		}
		return err
	}
	if !atual.Ativo || atual.UsuarioID != s.UsuarioID {
		return ErrVinculoNaoAutorizado
	}

	s.VinculoAtivo = &atual
	s.Estado = EstadoAtiva
	s.Permissoes = perm.Snapshot(atual.Perfil)
	agora := time.Now().UTC()
	if agora.After(s.UltimaAtividade) {
		s.UltimaAtividade = agora
	}

	if err := g.store.Renovar(ctx, s, g.inatividade); err != nil {
		if errors.Is(err, ErrNaoEncontrada) {
			return ErrSessaoExpirada
		}
		return err
	}
	return nil
}

// Encerrar termina a sessão e remove o espelho durável.
func (g *Gerente) Encerrar(ctx context.Context, s *Sessao) error {
	if err := g.store.Remover(ctx, s.TokenHash); err != nil {
		return err
	}
	if err := g.contas.DeleteSessaoRegistro(ctx, s.TokenHash); err != nil {
		log.Error().Err(err).Msg("sessão: falha ao remover espelho durável")
	}
	return nil
}

// EncerrarTodas derruba as demais sessões do usuário. Usado após troca de
// senha e desativação de conta.
func (g *Gerente) EncerrarTodas(ctx context.Context, usuarioID uuid.UUID, excetoHash string) (int, error) {
	removidas, err := g.store.RemoverDoUsuario(ctx, usuarioID.String(), excetoHash)
	if err != nil {
		return removidas, err
	}
	if err := g.contas.DeleteSessoesDoUsuario(ctx, usuarioID, excetoHash); err != nil {
		log.Error().Err(err).Msg("sessão: falha ao limpar espelhos duráveis")
	}
	return removidas, nil
}

// Listar devolve os espelhos duráveis das sessões do usuário.
func (g *Gerente) Listar(ctx context.Context, usuarioID uuid.UUID) ([]repo.SessaoRegistro, error) {
	return g.contas.ListSessoesDoUsuario(ctx, usuarioID)
}

func (g *Gerente) descartar(ctx context.Context, s *Sessao) {
	if err := g.store.Remover(ctx, s.TokenHash); err != nil {
		log.Error().Err(err).Msg("sessão: falha ao descartar sessão inválida")
	}
	if err := g.contas.DeleteSessaoRegistro(ctx, s.TokenHash); err != nil {
		log.Error().Err(err).Msg("sessão: falha ao remover espelho durável")
	}
}
