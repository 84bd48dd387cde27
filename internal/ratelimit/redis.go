package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ArmazenamentoRedis guarda as janelas em sorted sets, com o instante da
// tentativa como score. O pipeline transacional garante poda e leitura
// atômicas por chave; cada comando Redis é serializado pelo servidor, então
// escritores concorrentes nunca corrompem a janela.
type ArmazenamentoRedis struct {
	client redis.UniversalClient
}

// NovoArmazenamentoRedis cria o armazenamento sobre o cliente compartilhado.
func NovoArmazenamentoRedis(client redis.UniversalClient) *ArmazenamentoRedis {
	return &ArmazenamentoRedis{client: client}
}

func (a *ArmazenamentoRedis) Tentativas(ctx context.Context, chave string, corte time.Time) ([]time.Time, error) {
	pipe := a.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, chave, "-inf", strconv.FormatInt(corte.UnixNano(), 10))
	rangeCmd := pipe.ZRangeWithScores(ctx, chave, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	entradas := rangeCmd.Val()
	tentativas := make([]time.Time, 0, len(entradas))
	for _, entrada := range entradas {
		tentativas = append(tentativas, time.Unix(0, int64(entrada.Score)).UTC())
	}
	return tentativas, nil
}

func (a *ArmazenamentoRedis) Registrar(ctx context.Context, chave string, momento time.Time, ttl time.Duration) error {
	pipe := a.client.TxPipeline()
	pipe.ZAdd(ctx, chave, redis.Z{
		Score:  float64(momento.UnixNano()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, chave, ttl)
	_, err := pipe.Exec(ctx)
	return err
}
