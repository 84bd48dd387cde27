package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Resultado descreve o estado da janela para uma chave.
type Resultado struct {
	Permitido bool
	Restantes int
	ResetEm   time.Time
}

// Armazenamento persiste as tentativas por chave. Implementações precisam
// garantir poda e escrita atômicas por chave para que escritores concorrentes
// nunca honrem mais tentativas que o limite dentro da janela.
type Armazenamento interface {
	// Tentativas retorna os registros com momento posterior ao corte,
	// descartando definitivamente os anteriores.
	Tentativas(ctx context.Context, chave string, corte time.Time) ([]time.Time, error)
	// Registrar grava uma tentativa e renova a expiração da chave.
	Registrar(ctx context.Context, chave string, momento time.Time, ttl time.Duration) error
}

// Limitador implementa janela deslizante para conter força bruta.
// Verificar não consome tentativa: o chamador registra apenas falhas
// confirmadas, logo logins bem-sucedidos nunca contam para o limite.
type Limitador struct {
	store  Armazenamento
	max    int
	janela time.Duration
}

// NovoLimitador cria limitador com máximo de tentativas por janela.
func NovoLimitador(store Armazenamento, max int, janela time.Duration) *Limitador {
	return &Limitador{store: store, max: max, janela: janela}
}

// Verificar avalia a chave sem registrar tentativa.
func (l *Limitador) Verificar(ctx context.Context, identificador string) (Resultado, error) {
	agora := time.Now().UTC()
	tentativas, err := l.store.Tentativas(ctx, chaveHash(identificador), agora.Add(-l.janela))
	if err != nil {
		return Resultado{}, err
	}
	return l.avaliar(tentativas), nil
}

// RegistrarFalha grava uma tentativa malsucedida para a chave.
func (l *Limitador) RegistrarFalha(ctx context.Context, identificador string) error {
	return l.store.Registrar(ctx, chaveHash(identificador), time.Now().UTC(), l.janela)
}

func (l *Limitador) avaliar(tentativas []time.Time) Resultado {
	res := Resultado{
		Permitido: len(tentativas) < l.max,
		Restantes: l.max - len(tentativas),
	}
	if res.Restantes < 0 {
		res.Restantes = 0
	}
	if len(tentativas) > 0 {
		maisAntiga := tentativas[0]
		for _, t := range tentativas[1:] {
			if t.Before(maisAntiga) {
				maisAntiga = t
			}
		}
		res.ResetEm = maisAntiga.Add(l.janela)
	}
	return res
}

// chaveHash evita guardar CPFs crus no armazenamento compartilhado.
func chaveHash(identificador string) string {
	sum := sha256.Sum256([]byte(identificador))
	return "tentativas:" + hex.EncodeToString(sum[:])
}
