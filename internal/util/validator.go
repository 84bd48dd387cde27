package util

import (
	"errors"
	"strings"
)

// NormalizarCPF remove qualquer pontuação, preservando apenas dígitos.
func NormalizarCPF(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ErrSenhaFraca indica senha abaixo dos requisitos mínimos.
var ErrSenhaFraca = errors.New("senha deve ter pelo menos 8 caracteres")

// ValidarSenha verifica requisitos mínimos de senha.
func ValidarSenha(senha string) error {
	if len(senha) < 8 {
		return ErrSenhaFraca
	}
	return nil
}

// RequireString garante string não vazia.
func RequireString(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New(field + " obrigatório")
	}
	return nil
}
