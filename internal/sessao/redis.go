package sessao

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	prefixoSessao  = "sessao:"
	prefixoUsuario = "sessao:usuario:"
)

// ArmazenamentoRedis persiste sessões como JSON com TTL igual ao tempo de
// inatividade, mais um índice por usuário para encerramento em massa.
// O DEL do Redis é atômico, o que garante a semântica exigida de Remover.
type ArmazenamentoRedis struct {
	client redis.UniversalClient
}

// NovoArmazenamentoRedis cria o store sobre o cliente compartilhado.
func NovoArmazenamentoRedis(client redis.UniversalClient) *ArmazenamentoRedis {
	return &ArmazenamentoRedis{client: client}
}

func (a *ArmazenamentoRedis) Salvar(ctx context.Context, s *Sessao, ttl time.Duration) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}

	pipe := a.client.TxPipeline()
	pipe.Set(ctx, prefixoSessao+s.TokenHash, payload, ttl)
	pipe.SAdd(ctx, prefixoUsuario+s.UsuarioID.String(), s.TokenHash)
	// O índice vive um pouco além das sessões para tolerar renovações.
	pipe.Expire(ctx, prefixoUsuario+s.UsuarioID.String(), ttl+time.Hour)
	_, err = pipe.Exec(ctx)
	return err
}

func (a *ArmazenamentoRedis) Renovar(ctx context.Context, s *Sessao, ttl time.Duration) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}

	// SET XX só escreve sobre chave existente: um DEL concorrente
	// (logout, encerramento forçado) nunca é desfeito pela renovação.
	ok, err := a.client.SetXX(ctx, prefixoSessao+s.TokenHash, payload, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNaoEncontrada
	}

	a.client.Expire(ctx, prefixoUsuario+s.UsuarioID.String(), ttl+time.Hour)
	return nil
}

func (a *ArmazenamentoRedis) Carregar(ctx context.Context, tokenHash string) (*Sessao, error) {
	raw, err := a.client.Get(ctx, prefixoSessao+tokenHash).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNaoEncontrada
		}
		return nil, err
	}

	var s Sessao
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	s.TokenHash = tokenHash
	return &s, nil
}

func (a *ArmazenamentoRedis) Remover(ctx context.Context, tokenHash string) error {
	s, err := a.Carregar(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNaoEncontrada) {
			return nil
		}
		return err
	}

	pipe := a.client.TxPipeline()
	pipe.Del(ctx, prefixoSessao+tokenHash)
	pipe.SRem(ctx, prefixoUsuario+s.UsuarioID.String(), tokenHash)
	_, err = pipe.Exec(ctx)
	return err
}

func (a *ArmazenamentoRedis) RemoverDoUsuario(ctx context.Context, usuarioID string, excetoHash string) (int, error) {
	chaveIndice := prefixoUsuario + usuarioID
	hashes, err := a.client.SMembers(ctx, chaveIndice).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}

	removidas := 0
	for _, hash := range hashes {
		if hash == excetoHash {
			continue
		}
		pipe := a.client.TxPipeline()
		pipe.Del(ctx, prefixoSessao+hash)
		pipe.SRem(ctx, chaveIndice, hash)
		if _, err := pipe.Exec(ctx); err != nil {
			return removidas, err
		}
		removidas++
	}
	return removidas, nil
}
