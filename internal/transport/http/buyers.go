package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/qrbn-app/qurban-crypto-app/internal/domain"
)

// BuyerHistory exposes the per-buyer views of the workflow and the ledger.
type BuyerHistory interface {
	ListByBuyer(ctx context.Context, buyerID string) ([]domain.Purchase, error)
}

// BuyerLedger reads a buyer's finalized entries.
type BuyerLedger interface {
	ListByBuyer(ctx context.Context, buyerID string) ([]domain.LedgerEntry, error)
}

// HandleBuyer serves GET /buyers/{id}/purchases and GET /buyers/{id}/ledger.
func HandleBuyer(purchases BuyerHistory, ledger BuyerLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		id, view, ok := parseBuyerPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch view {
		case "purchases":
			list, err := purchases.ListByBuyer(r.Context(), id)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			out := make([]purchaseResponse, 0, len(list))
			for _, p := range list {
				out = append(out, toPurchaseResponse(p))
			}
			writeJSON(w, http.StatusOK, out)

		case "ledger":
			entries, err := ledger.ListByBuyer(r.Context(), id)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			out := make([]ledgerEntryResponse, 0, len(entries))
			for _, e := range entries {
				out = append(out, toLedgerEntryResponse(e))
			}
			writeJSON(w, http.StatusOK, out)

		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func parseBuyerPath(path string) (id, view string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 3 && parts[0] == "buyers" && parts[1] != "" {
		return parts[1], parts[2], true
	}
	return "", "", false
}

type ledgerEntryResponse struct {
	ID            string    `json:"id"`
	PoolID        string    `json:"pool_id"`
	BuyerID       string    `json:"buyer_id"`
	ReservationID string    `json:"reservation_id"`
	Shares        int       `json:"shares"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	ExternalRef   string    `json:"external_ref,omitempty"`
	Outcome       string    `json:"outcome"`
	CreatedAt     time.Time `json:"created_at"`
}

func toLedgerEntryResponse(e domain.LedgerEntry) ledgerEntryResponse {
	return ledgerEntryResponse{
		ID:            e.ID,
		PoolID:        e.PoolID,
		BuyerID:       e.BuyerID,
		ReservationID: e.ReservationID,
		Shares:        e.Shares,
		Amount:        e.Amount.String(),
		Currency:      e.Currency,
		ExternalRef:   e.ExternalRef,
		Outcome:       string(e.Outcome),
		CreatedAt:     e.CreatedAt,
	}
}
