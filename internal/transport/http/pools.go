package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/qrbn-app/qurban-crypto-app/internal/app"
	"github.com/qrbn-app/qurban-crypto-app/internal/domain"
)

// PoolDirectory is the minimal interface needed to create and read pools.
type PoolDirectory interface {
	CreatePool(ctx context.Context, in app.CreatePoolInput) (domain.Pool, error)
	GetPool(ctx context.Context, id string) (domain.Pool, error)
	ListPools(ctx context.Context) ([]domain.Pool, error)
	ClosePool(ctx context.Context, id string) (domain.Pool, error)
}

// HandlePools serves POST /pools and GET /pools.
func HandlePools(svc PoolDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			pools, err := svc.ListPools(r.Context())
			if err != nil {
				writeDomainError(w, err)
				return
			}
			out := make([]poolResponse, 0, len(pools))
			for _, p := range pools {
				out = append(out, toPoolResponse(p))
			}
			writeJSON(w, http.StatusOK, out)

		case http.MethodPost:
			var req createPoolRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
			price, err := decimal.NewFromString(req.PricePerShare)
			if err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidPrice, "invalid price_per_share")
				return
			}

			pool, err := svc.CreatePool(r.Context(), app.CreatePoolInput{
				Kind:          domain.PoolKind(req.Kind),
				Location:      req.Location,
				PhotoURL:      req.PhotoURL,
				TotalShares:   req.TotalShares,
				PricePerShare: price,
				Currency:      req.Currency,
			})
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, toPoolResponse(pool))

		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

// PoolLedger reads a pool's finalized entries.
type PoolLedger interface {
	ListByPool(ctx context.Context, poolID string) ([]domain.LedgerEntry, error)
}

// HandlePoolByID serves GET /pools/{id}, POST /pools/{id}/close, and
// GET /pools/{id}/ledger.
func HandlePoolByID(svc PoolDirectory, ledger PoolLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, action, ok := parsePoolPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			pool, err := svc.GetPool(r.Context(), id)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, toPoolResponse(pool))

		case action == "close" && r.Method == http.MethodPost:
			pool, err := svc.ClosePool(r.Context(), id)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, toPoolResponse(pool))

		case action == "ledger" && r.Method == http.MethodGet:
			entries, err := ledger.ListByPool(r.Context(), id)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			out := make([]ledgerEntryResponse, 0, len(entries))
			for _, e := range entries {
				out = append(out, toLedgerEntryResponse(e))
			}
			writeJSON(w, http.StatusOK, out)

		case action == "" || action == "close" || action == "ledger":
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")

		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func parsePoolPath(path string) (id, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "pools" && parts[1] != "":
		return parts[1], "", true
	case len(parts) == 3 && parts[0] == "pools" && parts[1] != "":
		return parts[1], parts[2], true
	}
	return "", "", false
}

type createPoolRequest struct {
	Kind          string `json:"kind"`
	Location      string `json:"location"`
	PhotoURL      string `json:"photo_url"`
	TotalShares   int    `json:"total_shares"`
	PricePerShare string `json:"price_per_share"`
	Currency      string `json:"currency"`
}

type poolResponse struct {
	ID              string    `json:"id"`
	Kind            string    `json:"kind"`
	Location        string    `json:"location"`
	PhotoURL        string    `json:"photo_url,omitempty"`
	TotalShares     int       `json:"total_shares"`
	RemainingShares int       `json:"remaining_shares"`
	SoldShares      int       `json:"sold_shares"`
	PricePerShare   string    `json:"price_per_share"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

func toPoolResponse(p domain.Pool) poolResponse {
	return poolResponse{
		ID:              p.ID,
		Kind:            string(p.Kind),
		Location:        p.Location,
		PhotoURL:        p.PhotoURL,
		TotalShares:     p.TotalShares,
		RemainingShares: p.RemainingShares,
		SoldShares:      p.SoldShares(),
		PricePerShare:   p.PricePerShare.String(),
		Currency:        p.Currency,
		Status:          string(p.Status),
		CreatedAt:       p.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
