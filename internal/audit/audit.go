package audit

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Eventos de segurança emitidos pelo núcleo. O destino final (sink) é
// externo; daqui saem apenas entradas estruturadas no log.
const (
	EventoLogin             = "login"
	EventoFalhaLogin        = "falha_login"
	EventoLogout            = "logout"
	EventoTrocaVinculo      = "troca_vinculo"
	EventoVinculoNegado     = "vinculo_negado"
	EventoSenhaAlterada     = "senha_alterada"
	EventoContaDesativada   = "conta_desativada"
	EventoSessoesEncerradas = "sessoes_encerradas"
)

// Meta carrega os dados do cliente que acompanham todo evento.
type Meta struct {
	IP        string
	UserAgent string
}

// Emitir grava um evento de auditoria estruturado.
func Emitir(evento string, meta Meta, campos map[string]any) {
	e := log.Info().Str("tipo", "auditoria").Str("evento", evento)
	registrar(e, meta, campos)
}

// EmitirAlerta grava eventos que indicam possível abuso (enumeração,
// adulteração de vínculo) com severidade de alerta.
func EmitirAlerta(evento string, meta Meta, campos map[string]any) {
	e := log.Warn().Str("tipo", "auditoria").Str("evento", evento)
	registrar(e, meta, campos)
}

func registrar(e *zerolog.Event, meta Meta, campos map[string]any) {
	if meta.IP != "" {
		e = e.Str("ip", meta.IP)
	}
	if meta.UserAgent != "" {
		e = e.Str("user_agent", meta.UserAgent)
	}
	for chave, valor := range campos {
		e = e.Interface(chave, valor)
	}
	e.Msg("auditoria")
}

// MascararCPF preserva só os três primeiros e os dois últimos dígitos.
func MascararCPF(cpf string) string {
	if len(cpf) != 11 {
		return "***"
	}
	return cpf[:3] + "******" + cpf[9:]
}
