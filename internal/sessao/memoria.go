package sessao

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// ArmazenamentoMemoria guarda sessões em processo, para testes e ambientes
// de desenvolvimento sem Redis. Serializa como o store Redis para que os
// dois se comportem igual quanto a campos não exportados.
type ArmazenamentoMemoria struct {
	mu       sync.Mutex
	sessoes  map[string][]byte
	validade map[string]time.Time
}

// NovoArmazenamentoMemoria cria o store vazio.
func NovoArmazenamentoMemoria() *ArmazenamentoMemoria {
	return &ArmazenamentoMemoria{
		sessoes:  make(map[string][]byte),
		validade: make(map[string]time.Time),
	}
}

func (a *ArmazenamentoMemoria) Salvar(ctx context.Context, s *Sessao, ttl time.Duration) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessoes[s.TokenHash] = payload
	a.validade[s.TokenHash] = time.Now().Add(ttl)
	return nil
}

func (a *ArmazenamentoMemoria) Renovar(ctx context.Context, s *Sessao, ttl time.Duration) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.sessoes[s.TokenHash]; !ok {
		return ErrNaoEncontrada
	}
	if expira, ok := a.validade[s.TokenHash]; ok && time.Now().After(expira) {
		delete(a.sessoes, s.TokenHash)
		delete(a.validade, s.TokenHash)
		return ErrNaoEncontrada
	}

	a.sessoes[s.TokenHash] = payload
	a.validade[s.TokenHash] = time.Now().Add(ttl)
	return nil
}

func (a *ArmazenamentoMemoria) Carregar(ctx context.Context, tokenHash string) (*Sessao, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	raw, ok := a.sessoes[tokenHash]
	if !ok {
		return nil, ErrNaoEncontrada
	}
	if expira, ok := a.validade[tokenHash]; ok && time.Now().After(expira) {
		delete(a.sessoes, tokenHash)
		delete(a.validade, tokenHash)
		return nil, ErrNaoEncontrada
	}

	var s Sessao
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	s.TokenHash = tokenHash
	return &s, nil
}

func (a *ArmazenamentoMemoria) Remover(ctx context.Context, tokenHash string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessoes, tokenHash)
	delete(a.validade, tokenHash)
	return nil
}

func (a *ArmazenamentoMemoria) RemoverDoUsuario(ctx context.Context, usuarioID string, excetoHash string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	removidas := 0
	for hash, raw := range a.sessoes {
		if hash == excetoHash {
			continue
		}
		var s Sessao
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if s.UsuarioID.String() != usuarioID {
			continue
		}
		delete(a.sessoes, hash)
		delete(a.validade, hash)
		removidas++
	}
	return removidas, nil
}
