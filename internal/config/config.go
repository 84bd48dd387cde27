package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config centraliza a configuração carregada do ambiente.
type Config struct {
	Port               int
	DBDSN              string
	RedisURL           string
	AllowOrigins       []string
	SessaoInatividade  time.Duration
	LoginMaxTentativas int
	LoginJanela        time.Duration
	RateLimitPublic    RateLimitConfig
	RateLimitAuth      RateLimitConfig
}

// RateLimitConfig representa limites simples para throttling por IP.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Load carrega variáveis de ambiente e aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	portStr := getEnv("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return nil, errors.New("PORT inválida")
	}
	cfg.Port = port

	cfg.DBDSN = getEnv("DB_DSN", "")
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN obrigatório")
	}

	cfg.RedisURL = getEnv("REDIS_URL", "")
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL obrigatório")
	}

	inatividade, err := parseDurationEnv("SESSAO_INATIVIDADE", 4*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.SessaoInatividade = inatividade

	janela, err := parseDurationEnv("LOGIN_JANELA", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.LoginJanela = janela

	maxStr := getEnv("LOGIN_MAX_TENTATIVAS", "5")
	max, err := strconv.Atoi(maxStr)
	if err != nil || max <= 0 {
		return nil, errors.New("LOGIN_MAX_TENTATIVAS inválido")
	}
	cfg.LoginMaxTentativas = max

	allowOrigins := strings.Split(getEnv("ALLOW_ORIGINS", ""), ",")
	cfg.AllowOrigins = nil
	for _, origin := range allowOrigins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
		}
	}

	cfg.RateLimitPublic = RateLimitConfig{RequestsPerSecond: 10, Burst: 20}
	cfg.RateLimitAuth = RateLimitConfig{RequestsPerSecond: 10, Burst: 40}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.New(key + " inválido")
	}
	return dur, nil
}
