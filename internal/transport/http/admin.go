package http

import (
	"context"
	"net/http"

	"github.com/qrbn-app/qurban-crypto-app/internal/app"
	"github.com/qrbn-app/qurban-crypto-app/internal/domain"
)

// StatsReader computes the operator dashboard snapshot.
type StatsReader interface {
	Stats(ctx context.Context) (app.Stats, error)
}

// MintQueue lists certificates that exhausted their retries.
type MintQueue interface {
	OperatorQueue(ctx context.Context) ([]domain.Certificate, error)
}

// HandleAdminStats serves GET /admin/stats.
func HandleAdminStats(svc StatsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		stats, err := svc.Stats(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}

		out := statsResponse{
			TotalPools:         stats.TotalPools,
			AvailablePools:     stats.AvailablePools,
			ClosedPools:        stats.ClosedPools,
			TotalShares:        stats.TotalShares,
			RemainingShares:    stats.RemainingShares,
			CompletedPurchases: stats.CompletedPurchases,
			TotalRevenue:       stats.TotalRevenue.String(),
			PerKind:            make([]kindStatsResponse, 0, len(stats.PerKind)),
		}
		for _, k := range stats.PerKind {
			out.PerKind = append(out.PerKind, kindStatsResponse{
				Kind:            string(k.Kind),
				Pools:           k.Pools,
				TotalShares:     k.TotalShares,
				CompletedShares: k.CompletedShares,
				Revenue:         k.Revenue.String(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// HandleMintQueue serves GET /admin/mint-queue.
func HandleMintQueue(svc MintQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		certs, err := svc.OperatorQueue(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		out := make([]certificateResponse, 0, len(certs))
		for _, c := range certs {
			out = append(out, toCertificateResponse(c))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type statsResponse struct {
	TotalPools         int                 `json:"total_pools"`
	AvailablePools     int                 `json:"available_pools"`
	ClosedPools        int                 `json:"closed_pools"`
	TotalShares        int                 `json:"total_shares"`
	RemainingShares    int                 `json:"remaining_shares"`
	CompletedPurchases int                 `json:"completed_purchases"`
	TotalRevenue       string              `json:"total_revenue"`
	PerKind            []kindStatsResponse `json:"per_kind"`
}

type kindStatsResponse struct {
	Kind            string `json:"kind"`
	Pools           int    `json:"pools"`
	TotalShares     int    `json:"total_shares"`
	CompletedShares int    `json:"completed_shares"`
	Revenue         string `json:"revenue"`
}

type certificateResponse struct {
	ID            string `json:"id"`
	LedgerEntryID string `json:"ledger_entry_id"`
	OwnerID       string `json:"owner_id"`
	MetadataURI   string `json:"metadata_uri"`
	TokenRef      string `json:"token_ref,omitempty"`
	MintState     string `json:"mint_state"`
	Attempts      int    `json:"attempts"`
}

func toCertificateResponse(c domain.Certificate) certificateResponse {
	return certificateResponse{
		ID:            c.ID,
		LedgerEntryID: c.LedgerEntryID,
		OwnerID:       c.OwnerID,
		MetadataURI:   c.MetadataURI,
		TokenRef:      c.TokenRef,
		MintState:     string(c.MintState),
		Attempts:      c.Attempts,
	}
}
