package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/malbeclabs/airdrop/airdrop/pkg/claims"
	"github.com/malbeclabs/airdrop/airdrop/pkg/distributor"
	"github.com/malbeclabs/airdrop/airdrop/pkg/vesting"
)

// DistributorResponse is a distributor account with its derived schedule view.
type DistributorResponse struct {
	*distributor.Distributor
	Type  string `json:"type"`
	Phase string `json:"phase"`
}

// ListAirdrops serves the distributor directory.
func (h *Handlers) ListAirdrops(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Directory.Ready() {
		writeError(w, http.StatusServiceUnavailable, "directory_not_ready", "distributor directory is still loading")
		return
	}
	p := ParsePagination(r, DefaultLimit)
	page := h.cfg.Directory.List(r.URL.Query().Get("search"), p.Limit, p.Offset)
	writeJSON(w, http.StatusOK, PaginatedResponse[claims.Row]{
		Items:  page.Items,
		Total:  page.Total,
		Limit:  p.Limit,
		Offset: p.Offset,
	})
}

// GetAirdrop serves one distributor.
func (h *Handlers) GetAirdrop(w http.ResponseWriter, r *http.Request) {
	id, ok := pathKey(w, r, "id")
	if !ok {
		return
	}
	d, err := h.cfg.Claims.Distributor(r.Context(), id)
	if errors.Is(err, claims.ErrDistributorNotFound) {
		writeError(w, http.StatusNotFound, "distributor_not_found", "")
		return
	}
	if err != nil {
		h.reportError(r, "get airdrop", err)
		writeError(w, http.StatusBadGateway, "upstream_unavailable", "failed to fetch distributor")
		return
	}

	sched := d.Schedule()
	writeJSON(w, http.StatusOK, DistributorResponse{
		Distributor: d,
		Type:        sched.Kind().String(),
		Phase:       vesting.ClassifyPhase(h.cfg.Clock.Now().Unix(), sched.StartTs, sched.EndTs).String(),
	})
}

// pathKey parses a base58 public key URL parameter, writing a 400 when invalid.
func pathKey(w http.ResponseWriter, r *http.Request, name string) (solana.PublicKey, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	key, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_address", name+" is not a valid address")
		return solana.PublicKey{}, false
	}
	return key, true
}
