package perm

// Perfil é o nível hierárquico de um vínculo. Enum fechado: qualquer valor
// fora destas constantes falha fechado em todas as consultas.
type Perfil string

const (
	PerfilNacional  Perfil = "NACIONAL"
	PerfilRegional  Perfil = "REGIONAL"
	PerfilMunicipal Perfil = "MUNICIPAL"
	PerfilUnidade   Perfil = "UNIDADE"
)

// Valido reporta se o valor corresponde a um perfil conhecido.
func (p Perfil) Valido() bool {
	switch p {
	case PerfilNacional, PerfilRegional, PerfilMunicipal, PerfilUnidade:
		return true
	default:
		return false
	}
}

// Recurso identifica um módulo de negócio protegido.
type Recurso string

const (
	RecursoEquipamentos Recurso = "equipamentos"
	RecursoRelatorios   Recurso = "relatorios"
	RecursoUsuarios     Recurso = "usuarios"
	RecursoIndicadores  Recurso = "indicadores"
	RecursoSessoes      Recurso = "sessoes"
)

// Acao é a operação solicitada sobre um recurso.
type Acao string

const (
	AcaoCriar     Acao = "criar"
	AcaoLer       Acao = "ler"
	AcaoAtualizar Acao = "atualizar"
	AcaoExcluir   Acao = "excluir"
	AcaoExportar  Acao = "exportar"
)
