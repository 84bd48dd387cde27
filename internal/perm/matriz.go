package perm

// matriz relaciona perfil x recurso x ação. O perfil Nacional não passa por
// aqui: tem acesso irrestrito resolvido antes da consulta. Ausência de entrada
// significa negado.
var matriz = map[Perfil]map[Recurso]map[Acao]bool{
	PerfilRegional: {
		RecursoEquipamentos: {AcaoLer: true, AcaoExportar: true},
		RecursoRelatorios:   {AcaoCriar: true, AcaoLer: true, AcaoExportar: true},
		RecursoUsuarios:     {AcaoLer: true},
		RecursoIndicadores:  {AcaoLer: true, AcaoExportar: true},
		RecursoSessoes:      {AcaoLer: true},
	},
	PerfilMunicipal: {
		RecursoEquipamentos: {AcaoCriar: true, AcaoLer: true, AcaoAtualizar: true, AcaoExportar: true},
		RecursoRelatorios:   {AcaoCriar: true, AcaoLer: true, AcaoExportar: true},
		RecursoUsuarios:     {AcaoLer: true},
		RecursoIndicadores:  {AcaoLer: true},
	},
	PerfilUnidade: {
		RecursoEquipamentos: {AcaoCriar: true, AcaoLer: true, AcaoAtualizar: true},
		RecursoRelatorios:   {AcaoCriar: true, AcaoLer: true},
		RecursoIndicadores:  {AcaoLer: true},
	},
}

// Permitido resolve (perfil, recurso, ação). Nacional é administrador
// implícito; para os demais perfis qualquer lacuna na matriz nega.
func Permitido(perfil Perfil, recurso Recurso, acao Acao) bool {
	if perfil == PerfilNacional {
		return true
	}
	recursos, ok := matriz[perfil]
	if !ok {
		return false
	}
	acoes, ok := recursos[recurso]
	if !ok {
		return false
	}
	return acoes[acao]
}

// Permissao é uma entrada resolvida do snapshot de sessão.
type Permissao struct {
	Recurso Recurso `json:"recurso"`
	Acao    Acao    `json:"acao"`
}

// Snapshot materializa todas as permissões do perfil. O resultado é gravado
// na sessão no momento da seleção de vínculo.
func Snapshot(perfil Perfil) []Permissao {
	recursos := []Recurso{RecursoEquipamentos, RecursoRelatorios, RecursoUsuarios, RecursoIndicadores, RecursoSessoes}
	acoes := []Acao{AcaoCriar, AcaoLer, AcaoAtualizar, AcaoExcluir, AcaoExportar}

	var snapshot []Permissao
	for _, recurso := range recursos {
		for _, acao := range acoes {
			if Permitido(perfil, recurso, acao) {
				snapshot = append(snapshot, Permissao{Recurso: recurso, Acao: acao})
			}
		}
	}
	return snapshot
}
