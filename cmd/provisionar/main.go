package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/redesaude/portal/internal/auth"
	"github.com/redesaude/portal/internal/db"
	"github.com/redesaude/portal/internal/identidade"
	"github.com/redesaude/portal/internal/perm"
	"github.com/redesaude/portal/internal/repo"
	"github.com/redesaude/portal/internal/util"
)

// Ferramenta de operação: cria uma conta com um vínculo inicial.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	var (
		cpf       = flag.String("cpf", "", "CPF do usuário (com ou sem pontuação)")
		nome      = flag.String("nome", "", "nome completo")
		email     = flag.String("email", "", "e-mail de contato")
		senha     = flag.String("senha", "", "senha inicial")
		perfil    = flag.String("perfil", "", "perfil do vínculo: NACIONAL, REGIONAL, MUNICIPAL ou UNIDADE")
		municipio = flag.Int("municipio", 0, "código IBGE do município (obrigatório para MUNICIPAL e UNIDADE)")
	)
	flag.Parse()

	cpfNormalizado := util.NormalizarCPF(*cpf)
	if !identidade.ValidarCPF(cpfNormalizado) {
		log.Fatal().Msg("CPF inválido")
	}
	if strings.TrimSpace(*nome) == "" || strings.TrimSpace(*email) == "" {
		log.Fatal().Msg("nome e email são obrigatórios")
	}
	if err := util.ValidarSenha(*senha); err != nil {
		log.Fatal().Err(err).Msg("senha rejeitada")
	}

	tipo := perm.Perfil(strings.ToUpper(strings.TrimSpace(*perfil)))
	if !tipo.Valido() {
		log.Fatal().Msg("perfil desconhecido")
	}

	var municipioID *int
	switch tipo {
	case perm.PerfilMunicipal, perm.PerfilUnidade:
		if *municipio <= 0 {
			log.Fatal().Msg("município é obrigatório para este perfil")
		}
		municipioID = municipio
	}

	_ = godotenv.Load()
	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if dsn == "" {
		log.Fatal().Msg("defina DB_DSN")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("não foi possível conectar ao banco")
	}
	defer pool.Close()

	hash, err := auth.Hash(*senha)
	if err != nil {
		log.Fatal().Err(err).Msg("falha ao gerar hash")
	}

	agora := time.Now().UTC()
	usuario := repo.Usuario{
		ID:        uuid.New(),
		CPF:       cpfNormalizado,
		Nome:      strings.TrimSpace(*nome),
		Email:     strings.ToLower(strings.TrimSpace(*email)),
		SenhaHash: hash,
		Ativo:     true,
		CriadoEm:  agora,
	}
	vinculo := repo.Vinculo{
		UsuarioID:   usuario.ID,
		Perfil:      tipo,
		MunicipioID: municipioID,
		Ativo:       true,
		CriadoEm:    agora,
	}

	if err := repo.New(pool).CriarUsuarioComVinculos(ctx, usuario, []repo.Vinculo{vinculo}); err != nil {
		log.Fatal().Err(err).Msg("falha ao provisionar usuário")
	}

	log.Info().Str("usuario", usuario.ID.String()).Msg("usuário provisionado")
}
