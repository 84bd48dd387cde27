package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// SuccessEnvelope padroniza respostas com dados.
type SuccessEnvelope struct {
	Data  any `json:"data"`
	Error any `json:"error"`
}

// ErrorEnvelope padroniza respostas de erro.
type ErrorEnvelope struct {
	Data  any        `json:"data"`
	Error *ErrorBody `json:"error"`
}

// ErrorBody descreve falhas normalizadas.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// WriteJSON escreve envelope de sucesso.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessEnvelope{Data: data, Error: nil})
}

// WriteError escreve envelope de erro e mantém formato consistente.
func WriteError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorEnvelope{
		Data:  nil,
		Error: &ErrorBody{Code: code, Message: message, Details: details},
	})
}

// WriteRateLimited responde 429 com Retry-After derivado do fim da janela.
func WriteRateLimited(w http.ResponseWriter, resetEm time.Time) {
	segundos := int(time.Until(resetEm).Seconds())
	if segundos < 1 {
		segundos = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(segundos))
	WriteError(w, http.StatusTooManyRequests, "RATE_LIMIT",
		fmt.Sprintf("muitas tentativas; tente novamente em %ds", segundos), nil)
}
