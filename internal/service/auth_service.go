package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/redesaude/portal/internal/audit"
	"github.com/redesaude/portal/internal/auth"
	"github.com/redesaude/portal/internal/identidade"
	"github.com/redesaude/portal/internal/ratelimit"
	"github.com/redesaude/portal/internal/repo"
	"github.com/redesaude/portal/internal/sessao"
	"github.com/redesaude/portal/internal/util"
)

var (
	// ErrIdentidadeInvalida indica CPF malformado.
	ErrIdentidadeInvalida = errors.New("CPF inválido")
	// ErrCredenciaisInvalidas cobre CPF desconhecido e senha incorreta com a
	// mesma mensagem, para não permitir enumeração de contas.
	ErrCredenciaisInvalidas = errors.New("CPF ou senha incorretos")
	// ErrContaDesativada indica credencial válida de conta desligada.
	ErrContaDesativada = errors.New("conta desativada")
	// ErrSemVinculo indica login válido sem nenhum vínculo ativo.
	ErrSemVinculo = errors.New("usuário sem vínculo ativo; procure o suporte")
)

// ErrLimiteTentativas sinaliza bloqueio por força bruta e carrega o instante
// em que a janela libera.
type ErrLimiteTentativas struct {
	ResetEm time.Time
}

func (e *ErrLimiteTentativas) Error() string {
	return "muitas tentativas de acesso; aguarde para tentar novamente"
}

type authRepository interface {
	GetUsuarioByCPF(ctx context.Context, cpf string) (repo.Usuario, error)
	GetUsuarioByID(ctx context.Context, id uuid.UUID) (repo.Usuario, error)
	ListVinculosAtivos(ctx context.Context, usuarioID uuid.UUID) ([]repo.Vinculo, error)
	UpdateUltimoAcesso(ctx context.Context, usuarioID uuid.UUID, momento time.Time) error
	UpdateSenha(ctx context.Context, usuarioID uuid.UUID, senhaHash string) error
	DesativarUsuario(ctx context.Context, usuarioID uuid.UUID) error
}

type limitador interface {
	Verificar(ctx context.Context, identificador string) (ratelimit.Resultado, error)
	RegistrarFalha(ctx context.Context, identificador string) error
}

type gerenteSessoes interface {
	Criar(ctx context.Context, usuario repo.Usuario, vinculos []repo.Vinculo, meta sessao.Meta) (*sessao.Sessao, string, error)
	SelecionarVinculo(ctx context.Context, s *sessao.Sessao, vinculoID int64) error
	Encerrar(ctx context.Context, s *sessao.Sessao) error
	EncerrarTodas(ctx context.Context, usuarioID uuid.UUID, excetoHash string) (int, error)
	Listar(ctx context.Context, usuarioID uuid.UUID) ([]repo.SessaoRegistro, error)
}

// AuthService orquestra autenticação, seleção de vínculo e ciclo de sessão.
type AuthService struct {
	repo    authRepository
	limite  limitador
	sessoes gerenteSessoes
}

// NewAuthService cria novo serviço.
func NewAuthService(r authRepository, limite limitador, sessoes gerenteSessoes) *AuthService {
	return &AuthService{repo: r, limite: limite, sessoes: sessoes}
}

// LoginResultado representa retorno do fluxo de autenticação.
type LoginResultado struct {
	Sessao *sessao.Sessao
	// Token é o valor cru que vai para o cookie do cliente.
	Token string
	// PrecisaSelecionarVinculo indica que o usuário possui mais de um
	// vínculo e nenhuma operação privilegiada resolve antes da escolha.
	PrecisaSelecionarVinculo bool
}

// Login autentica CPF + senha e materializa a sessão.
func (s *AuthService) Login(ctx context.Context, cpf, senha string, meta sessao.Meta) (*LoginResultado, error) {
	cpf = util.NormalizarCPF(cpf)
	if !identidade.ValidarCPF(cpf) {
		return nil, ErrIdentidadeInvalida
	}

	auditMeta := audit.Meta{IP: meta.IP, UserAgent: meta.UserAgent}
	chaveLimite := "login_" + cpf

	resultado, err := s.limite.Verificar(ctx, chaveLimite)
	if err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	if !resultado.Permitido {
		// Requisição bloqueada não consome tentativa extra.
		return nil, &ErrLimiteTentativas{ResetEm: resultado.ResetEm}
	}

	usuario, err := s.repo.GetUsuarioByCPF(ctx, cpf)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.registrarFalha(ctx, chaveLimite, cpf, auditMeta, "cpf_desconhecido")
			return nil, ErrCredenciaisInvalidas
		}
		return nil, err
	}

	if !usuario.Ativo {
		audit.Emitir(audit.EventoFalhaLogin, auditMeta, map[string]any{
			"cpf":    audit.MascararCPF(cpf),
			"motivo": "conta_desativada",
		})
		return nil, ErrContaDesativada
	}

	ok, err := auth.Verify(senha, usuario.SenhaHash)
	if err != nil {
		log.Warn().Err(err).Msg("login: falha ao verificar hash de senha")
		return nil, ErrCredenciaisInvalidas
	}
	if !ok {
		s.registrarFalha(ctx, chaveLimite, cpf, auditMeta, "senha_incorreta")
		return nil, ErrCredenciaisInvalidas
	}

	vinculos, err := s.repo.ListVinculosAtivos(ctx, usuario.ID)
	if err != nil {
		return nil, err
	}
	if len(vinculos) == 0 {
		audit.Emitir(audit.EventoFalhaLogin, auditMeta, map[string]any{
			"usuario": usuario.ID.String(),
			"motivo":  "sem_vinculo",
		})
		return nil, ErrSemVinculo
	}

	sess, token, err := s.sessoes.Criar(ctx, usuario, vinculos, meta)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateUltimoAcesso(ctx, usuario.ID, time.Now().UTC()); err != nil {
		log.Error().Err(err).Msg("login: falha ao gravar último acesso")
	}

	audit.Emitir(audit.EventoLogin, auditMeta, map[string]any{
		"usuario":  usuario.ID.String(),
		"vinculos": len(vinculos),
	})

	return &LoginResultado{
		Sessao:                   sess,
		Token:                    token,
		PrecisaSelecionarVinculo: sess.PendenteVinculo(),
	}, nil
}

// SelecionarVinculo resolve o vínculo ativo da sessão.
func (s *AuthService) SelecionarVinculo(ctx context.Context, sess *sessao.Sessao, vinculoID int64, meta audit.Meta) error {
	if err := s.sessoes.SelecionarVinculo(ctx, sess, vinculoID); err != nil {
		if errors.Is(err, sessao.ErrVinculoNaoAutorizado) {
			// Possível adulteração: o vínculo pedido não pertence à sessão.
			audit.EmitirAlerta(audit.EventoVinculoNegado, meta, map[string]any{
				"usuario": sess.UsuarioID.String(),
				"vinculo": vinculoID,
			})
		}
		return err
	}

	audit.Emitir(audit.EventoTrocaVinculo, meta, map[string]any{
		"usuario": sess.UsuarioID.String(),
		"vinculo": vinculoID,
		"perfil":  string(sess.VinculoAtivo.Perfil),
	})
	return nil
}

// Logout encerra a sessão.
func (s *AuthService) Logout(ctx context.Context, sess *sessao.Sessao, meta audit.Meta) error {
	if err := s.sessoes.Encerrar(ctx, sess); err != nil {
		return err
	}
	audit.Emitir(audit.EventoLogout, meta, map[string]any{
		"usuario": sess.UsuarioID.String(),
	})
	return nil
}

// AlterarSenha troca a senha do usuário da sessão e derruba as demais
// sessões dele, mantendo apenas a atual.
func (s *AuthService) AlterarSenha(ctx context.Context, sess *sessao.Sessao, senhaAtual, senhaNova string, meta audit.Meta) error {
	if err := util.ValidarSenha(senhaNova); err != nil {
		return err
	}

	usuario, err := s.repo.GetUsuarioByID(ctx, sess.UsuarioID)
	if err != nil {
		return err
	}

	ok, err := auth.Verify(senhaAtual, usuario.SenhaHash)
	if err != nil || !ok {
		return ErrCredenciaisInvalidas
	}

	hash, err := auth.Hash(senhaNova)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateSenha(ctx, usuario.ID, hash); err != nil {
		return err
	}

	removidas, err := s.sessoes.EncerrarTodas(ctx, usuario.ID, sess.TokenHash)
	if err != nil {
		log.Error().Err(err).Msg("alterar senha: falha ao encerrar demais sessões")
	}

	audit.Emitir(audit.EventoSenhaAlterada, meta, map[string]any{
		"usuario":            usuario.ID.String(),
		"sessoes_encerradas": removidas,
	})
	return nil
}

// DesativarUsuario desliga a conta e encerra todas as sessões dela.
// Operação administrativa; a autorização é checada na borda HTTP.
func (s *AuthService) DesativarUsuario(ctx context.Context, usuarioID uuid.UUID, meta audit.Meta) error {
	if err := s.repo.DesativarUsuario(ctx, usuarioID); err != nil {
		return err
	}

	removidas, err := s.sessoes.EncerrarTodas(ctx, usuarioID, "")
	if err != nil {
		log.Error().Err(err).Msg("desativar usuário: falha ao encerrar sessões")
	}

	audit.Emitir(audit.EventoContaDesativada, meta, map[string]any{
		"usuario":            usuarioID.String(),
		"sessoes_encerradas": removidas,
	})
	return nil
}

// EncerrarSessoes derruba todas as sessões de um usuário (ação administrativa).
func (s *AuthService) EncerrarSessoes(ctx context.Context, usuarioID uuid.UUID, meta audit.Meta) (int, error) {
	removidas, err := s.sessoes.EncerrarTodas(ctx, usuarioID, "")
	if err != nil {
		return removidas, err
	}
	audit.Emitir(audit.EventoSessoesEncerradas, meta, map[string]any{
		"usuario":            usuarioID.String(),
		"sessoes_encerradas": removidas,
	})
	return removidas, nil
}

// ListarSessoes lista os registros duráveis de sessão de um usuário.
func (s *AuthService) ListarSessoes(ctx context.Context, usuarioID uuid.UUID) ([]repo.SessaoRegistro, error) {
	return s.sessoes.Listar(ctx, usuarioID)
}

func (s *AuthService) registrarFalha(ctx context.Context, chave, cpf string, meta audit.Meta, motivo string) {
	if err := s.limite.RegistrarFalha(ctx, chave); err != nil {
		log.Error().Err(err).Msg("login: falha ao registrar tentativa")
	}
	audit.Emitir(audit.EventoFalhaLogin, meta, map[string]any{
		"cpf":    audit.MascararCPF(cpf),
		"motivo": motivo,
	})
}
