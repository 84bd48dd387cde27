package auth

import (
	"github.com/alexedwards/argon2id"
)

// Parâmetros Argon2id usados em todos os hashes novos. Hashes antigos seguem
// verificáveis porque os parâmetros viajam dentro do próprio hash.
var params = &argon2id.Params{
	Memory:      64 * 1024, // 64 MB
	Iterations:  3,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Hash gera um hash Argon2id da senha.
func Hash(senha string) (string, error) {
	return argon2id.CreateHash(senha, params)
}

// Verify compara a senha com o hash Argon2id armazenado.
func Verify(senha, hash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(senha, hash)
}
