package http

import (
	"encoding/json"
	"net/http"

	"github.com/qrbn-app/qurban-crypto-app/internal/domain"
)

const (
	codeMethodNotAllowed   = "method_not_allowed"
	codeNotFound           = "not_found"
	codeInvalidRequestBody = "invalid_request_body"
	codeInvalidID          = "invalid_id"
	codeInvalidKind        = "invalid_kind"
	codeInvalidShares      = "invalid_shares"
	codeInvalidPrice       = "invalid_price"
	codeInvalidCurrency    = "invalid_currency"
	codeBuyerRequired      = "buyer_required"
	codePoolNotFound       = "pool_not_found"
	codePoolClosed         = "pool_closed"
	codePurchaseNotFound   = "purchase_not_found"
	codeInsufficientShares = "insufficient_shares"
	codeReservationExpired = "reservation_expired"
	codeInvalidTransition  = "invalid_state_transition"
	codeConflict           = "conflict"
	codeForbidden          = "forbidden"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeDomainError maps engine errors onto status codes and machine codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch err {
	case domain.ErrInvalidID:
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case domain.ErrInvalidKind:
		writeError(w, http.StatusBadRequest, codeInvalidKind, err.Error())
	case domain.ErrInvalidShares:
		writeError(w, http.StatusBadRequest, codeInvalidShares, err.Error())
	case domain.ErrInvalidPrice:
		writeError(w, http.StatusBadRequest, codeInvalidPrice, err.Error())
	case domain.ErrInvalidCurrency:
		writeError(w, http.StatusBadRequest, codeInvalidCurrency, err.Error())
	case domain.ErrBuyerRequired:
		writeError(w, http.StatusBadRequest, codeBuyerRequired, err.Error())
	case domain.ErrPoolNotFound:
		writeError(w, http.StatusNotFound, codePoolNotFound, err.Error())
	case domain.ErrPurchaseNotFound:
		writeError(w, http.StatusNotFound, codePurchaseNotFound, err.Error())
	case domain.ErrPoolClosed:
		writeError(w, http.StatusConflict, codePoolClosed, err.Error())
	case domain.ErrInsufficientShares:
		writeError(w, http.StatusConflict, codeInsufficientShares, err.Error())
	case domain.ErrReservationExpired:
		writeError(w, http.StatusConflict, codeReservationExpired, err.Error())
	case domain.ErrInvalidTransition:
		writeError(w, http.StatusConflict, codeInvalidTransition, err.Error())
	case domain.ErrConflict:
		writeError(w, http.StatusConflict, codeConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
