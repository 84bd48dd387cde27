package identidade

import "fmt"

// ValidarCNS valida o Cartão Nacional de Saúde (15 dígitos).
// Números iniciados em 7, 8 ou 9 são provisórios; em 1 ou 2, definitivos.
func ValidarCNS(raw string) bool {
	cns := somenteDigitos(raw)
	if len(cns) != 15 {
		return false
	}

	switch cns[0] {
	case '7', '8', '9':
		return validarCNSProvisorio(cns)
	case '1', '2':
		return validarCNSDefinitivo(cns)
	default:
		return false
	}
}

// validarCNSProvisorio exige soma ponderada (pesos 15..1) divisível por 11.
func validarCNSProvisorio(cns string) bool {
	soma := 0
	for i := 0; i < 15; i++ {
		soma += int(cns[i]-'0') * (15 - i)
	}
	return soma%11 == 0
}

// validarCNSDefinitivo recompõe o número a partir dos 11 primeiros dígitos
// e do dígito verificador calculado. Quando o dv resulta em 10, a soma é
// recalculada com offset +2 e o sufixo passa a ser "001" + dv.
func validarCNSDefinitivo(cns string) bool {
	pis := cns[:11]

	soma := 0
	for i := 0; i < 11; i++ {
		soma += int(pis[i]-'0') * (15 - i)
	}

	resto := soma % 11
	dv := 11 - resto
	if dv == 11 {
		dv = 0
	}

	var esperado string
	if dv == 10 {
		soma += 2
		dv = 11 - soma%11
		esperado = fmt.Sprintf("%s001%d", pis, dv)
	} else {
		esperado = fmt.Sprintf("%s000%d", pis, dv)
	}

	return cns == esperado
}
