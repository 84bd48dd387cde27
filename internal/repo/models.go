package repo

import (
	"time"

	"github.com/google/uuid"

	"github.com/redesaude/portal/internal/perm"
)

// Usuario representa uma conta do portal. O CPF é o identificador de login
// e é armazenado apenas com dígitos.
type Usuario struct {
	ID           uuid.UUID
	CPF          string
	Nome         string
	Email        string
	SenhaHash    string
	Ativo        bool
	UltimoAcesso *time.Time
	CriadoEm     time.Time
}

// Vinculo concede a um usuário um perfil hierárquico, opcionalmente restrito
// a um município (código IBGE). Vínculos nunca são removidos fisicamente
// enquanto referenciados pela trilha de auditoria; apenas desativados.
type Vinculo struct {
	ID          int64
	UsuarioID   uuid.UUID
	Perfil      perm.Perfil
	MunicipioID *int
	Ativo       bool
	CriadoEm    time.Time
}

// SessaoRegistro é o espelho durável de uma sessão viva. Serve para listagem
// e encerramento remoto; a autoridade da decisão por requisição é o store de
// sessões, nunca esta linha.
type SessaoRegistro struct {
	TokenHash       string
	UsuarioID       uuid.UUID
	IP              string
	UserAgent       string
	CriadaEm        time.Time
	UltimaAtividade time.Time
}
