package ratelimit

import (
	"context"
	"sync"
	"time"
)

// ArmazenamentoMemoria mantém as janelas em processo, protegidas por mutex.
// Útil em testes e em ambientes de desenvolvimento sem Redis; não sobrevive
// a reinícios do processo.
type ArmazenamentoMemoria struct {
	mu       sync.Mutex
	janelas  map[string][]time.Time
	validade map[string]time.Time
}

// NovoArmazenamentoMemoria cria o armazenamento vazio.
func NovoArmazenamentoMemoria() *ArmazenamentoMemoria {
	return &ArmazenamentoMemoria{
		janelas:  make(map[string][]time.Time),
		validade: make(map[string]time.Time),
	}
}

func (a *ArmazenamentoMemoria) Tentativas(ctx context.Context, chave string, corte time.Time) ([]time.Time, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if expira, ok := a.validade[chave]; ok && time.Now().After(expira) {
		delete(a.janelas, chave)
		delete(a.validade, chave)
		return nil, nil
	}

	restantes := a.janelas[chave][:0]
	for _, t := range a.janelas[chave] {
		if t.After(corte) {
			restantes = append(restantes, t)
		}
	}
	a.janelas[chave] = restantes

	saida := make([]time.Time, len(restantes))
	copy(saida, restantes)
	return saida, nil
}

func (a *ArmazenamentoMemoria) Registrar(ctx context.Context, chave string, momento time.Time, ttl time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.janelas[chave] = append(a.janelas[chave], momento)
	a.validade[chave] = time.Now().Add(ttl)
	return nil
}
