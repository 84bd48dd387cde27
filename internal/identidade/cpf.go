package identidade

import "strings"

// ValidarCPF confere os dois dígitos verificadores do CPF (módulo 11).
// Entrada aceita com ou sem pontuação; retorna false para qualquer formato inválido.
func ValidarCPF(raw string) bool {
	cpf := somenteDigitos(raw)
	if len(cpf) != 11 {
		return false
	}
	if todosIguais(cpf) {
		return false
	}

	if digitoCPF(cpf, 9, 10) != int(cpf[9]-'0') {
		return false
	}
	return digitoCPF(cpf, 10, 11) == int(cpf[10]-'0')
}

// digitoCPF calcula um dígito verificador sobre os primeiros n dígitos,
// com pesos decrescentes a partir de peso. Resultado >= 10 vira 0.
func digitoCPF(cpf string, n, peso int) int {
	soma := 0
	for i := 0; i < n; i++ {
		soma += int(cpf[i]-'0') * (peso - i)
	}
	dv := 11 - soma%11
	if dv >= 10 {
		return 0
	}
	return dv
}

func somenteDigitos(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func todosIguais(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}
