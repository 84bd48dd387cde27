package sessao

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNaoEncontrada indica token sem sessão correspondente no store.
	ErrNaoEncontrada = errors.New("sessão não encontrada")
)

// Armazenamento guarda o estado vivo das sessões, indexado pelo hash do
// token. Remover precisa ser atômico: um Validar concorrente enxerga a
// sessão inteira ou sessão nenhuma, nunca um estado parcial.
type Armazenamento interface {
	Salvar(ctx context.Context, s *Sessao, ttl time.Duration) error
	// Renovar regrava a sessão somente se ela ainda existir no store.
	// Um encerramento concorrente entre Carregar e Renovar precisa vencer:
	// a renovação jamais recria uma chave removida. Sessão ausente retorna
	// ErrNaoEncontrada.
	Renovar(ctx context.Context, s *Sessao, ttl time.Duration) error
	Carregar(ctx context.Context, tokenHash string) (*Sessao, error)
	Remover(ctx context.Context, tokenHash string) error
	// RemoverDoUsuario descarta todas as sessões do usuário, exceto a de
	// hash informado (vazio remove todas). Retorna quantas caíram.
	RemoverDoUsuario(ctx context.Context, usuarioID string, excetoHash string) (int, error)
}
