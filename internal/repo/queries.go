package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redesaude/portal/internal/db"
	"github.com/redesaude/portal/internal/perm"
)

// Queries concentra o acesso ao Postgres.
type Queries struct {
	pool *pgxpool.Pool
}

// New cria o repositório sobre o pool compartilhado.
func New(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

// GetUsuarioByCPF busca conta pelo CPF normalizado (somente dígitos).
func (q *Queries) GetUsuarioByCPF(ctx context.Context, cpf string) (Usuario, error) {
	var u Usuario
	err := q.pool.QueryRow(ctx, `
        SELECT id, cpf, nome, email, senha_hash, ativo, ultimo_acesso, criado_em
        FROM usuarios
        WHERE cpf = $1
    `, cpf).Scan(&u.ID, &u.CPF, &u.Nome, &u.Email, &u.SenhaHash, &u.Ativo, &u.UltimoAcesso, &u.CriadoEm)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Usuario{}, ErrNotFound
		}
		return Usuario{}, err
	}
	return u, nil
}

// GetUsuarioByID busca conta pelo identificador.
func (q *Queries) GetUsuarioByID(ctx context.Context, id uuid.UUID) (Usuario, error) {
	var u Usuario
	err := q.pool.QueryRow(ctx, `
        SELECT id, cpf, nome, email, senha_hash, ativo, ultimo_acesso, criado_em
        FROM usuarios
        WHERE id = $1
    `, id).Scan(&u.ID, &u.CPF, &u.Nome, &u.Email, &u.SenhaHash, &u.Ativo, &u.UltimoAcesso, &u.CriadoEm)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Usuario{}, ErrNotFound
		}
		return Usuario{}, err
	}
	return u, nil
}

// ListVinculosAtivos lista vínculos ativos do usuário, mais antigos primeiro.
func (q *Queries) ListVinculosAtivos(ctx context.Context, usuarioID uuid.UUID) ([]Vinculo, error) {
	rows, err := q.pool.Query(ctx, `
        SELECT id, usuario_id, perfil, municipio_id, ativo, criado_em
        FROM vinculos
        WHERE usuario_id = $1 AND ativo
        ORDER BY criado_em
    `, usuarioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vinculos []Vinculo
	for rows.Next() {
		var (
			v      Vinculo
			perfil string
		)
		if err := rows.Scan(&v.ID, &v.UsuarioID, &perfil, &v.MunicipioID, &v.Ativo, &v.CriadoEm); err != nil {
			return nil, err
		}
		v.Perfil = perm.Perfil(perfil)
		vinculos = append(vinculos, v)
	}
	return vinculos, rows.Err()
}

// GetVinculo busca um vínculo pelo identificador.
func (q *Queries) GetVinculo(ctx context.Context, id int64) (Vinculo, error) {
	var (
		v      Vinculo
		perfil string
	)
	err := q.pool.QueryRow(ctx, `
        SELECT id, usuario_id, perfil, municipio_id, ativo, criado_em
        FROM vinculos
        WHERE id = $1
    `, id).Scan(&v.ID, &v.UsuarioID, &perfil, &v.MunicipioID, &v.Ativo, &v.CriadoEm)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vinculo{}, ErrNotFound
		}
		return Vinculo{}, err
	}
	v.Perfil = perm.Perfil(perfil)
	return v, nil
}

// UpdateUltimoAcesso registra o momento do login bem-sucedido.
func (q *Queries) UpdateUltimoAcesso(ctx context.Context, usuarioID uuid.UUID, momento time.Time) error {
	cmd, err := q.pool.Exec(ctx, `
        UPDATE usuarios SET ultimo_acesso = $2 WHERE id = $1
    `, usuarioID, momento)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSenha substitui o hash da senha.
func (q *Queries) UpdateSenha(ctx context.Context, usuarioID uuid.UUID, senhaHash string) error {
	cmd, err := q.pool.Exec(ctx, `
        UPDATE usuarios SET senha_hash = $2 WHERE id = $1
    `, usuarioID, senhaHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DesativarUsuario desliga a conta. Sessões vivas são encerradas pelo chamador.
func (q *Queries) DesativarUsuario(ctx context.Context, usuarioID uuid.UUID) error {
	cmd, err := q.pool.Exec(ctx, `
        UPDATE usuarios SET ativo = FALSE WHERE id = $1
    `, usuarioID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CriarUsuarioComVinculos provisiona conta e vínculos em uma transação.
func (q *Queries) CriarUsuarioComVinculos(ctx context.Context, u Usuario, vinculos []Vinculo) error {
	return db.WithTx(ctx, q.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            INSERT INTO usuarios (id, cpf, nome, email, senha_hash, ativo, criado_em)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
        `, u.ID, u.CPF, u.Nome, u.Email, u.SenhaHash, u.Ativo, u.CriadoEm); err != nil {
			return err
		}
		for _, v := range vinculos {
			if _, err := tx.Exec(ctx, `
                INSERT INTO vinculos (usuario_id, perfil, municipio_id, ativo, criado_em)
                VALUES ($1, $2, $3, $4, $5)
            `, u.ID, string(v.Perfil), v.MunicipioID, v.Ativo, v.CriadoEm); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertSessaoRegistro grava o espelho durável da sessão.
func (q *Queries) InsertSessaoRegistro(ctx context.Context, reg SessaoRegistro) error {
	_, err := q.pool.Exec(ctx, `
        INSERT INTO sessoes (token_hash, usuario_id, ip, user_agent, criada_em, ultima_atividade)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, reg.TokenHash, reg.UsuarioID, reg.IP, reg.UserAgent, reg.CriadaEm, reg.UltimaAtividade)
	return err
}

// TouchSessaoRegistro atualiza a última atividade do espelho.
func (q *Queries) TouchSessaoRegistro(ctx context.Context, tokenHash string, momento time.Time) error {
	_, err := q.pool.Exec(ctx, `
        UPDATE sessoes SET ultima_atividade = $2 WHERE token_hash = $1
    `, tokenHash, momento)
	return err
}

// DeleteSessaoRegistro remove o espelho de uma sessão encerrada.
func (q *Queries) DeleteSessaoRegistro(ctx context.Context, tokenHash string) error {
	_, err := q.pool.Exec(ctx, `
        DELETE FROM sessoes WHERE token_hash = $1
    `, tokenHash)
	return err
}

// DeleteSessoesDoUsuario remove os espelhos de todas as sessões do usuário,
// exceto a indicada (hash vazio remove todas).
func (q *Queries) DeleteSessoesDoUsuario(ctx context.Context, usuarioID uuid.UUID, excetoHash string) error {
	_, err := q.pool.Exec(ctx, `
        DELETE FROM sessoes WHERE usuario_id = $1 AND token_hash <> $2
    `, usuarioID, excetoHash)
	return err
}

// ListSessoesDoUsuario lista os espelhos de sessão de um usuário.
func (q *Queries) ListSessoesDoUsuario(ctx context.Context, usuarioID uuid.UUID) ([]SessaoRegistro, error) {
	rows, err := q.pool.Query(ctx, `
        SELECT token_hash, usuario_id, ip, user_agent, criada_em, ultima_atividade
        FROM sessoes
        WHERE usuario_id = $1
        ORDER BY ultima_atividade DESC
    `, usuarioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var registros []SessaoRegistro
	for rows.Next() {
		var reg SessaoRegistro
		if err := rows.Scan(&reg.TokenHash, &reg.UsuarioID, &reg.IP, &reg.UserAgent, &reg.CriadaEm, &reg.UltimaAtividade); err != nil {
			return nil, err
		}
		registros = append(registros, reg)
	}
	return registros, rows.Err()
}
