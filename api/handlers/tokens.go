package handlers

import (
	"errors"
	"net/http"

	"github.com/malbeclabs/airdrop/airdrop/pkg/price"
	"github.com/malbeclabs/airdrop/airdrop/pkg/token"
)

// GetToken serves display info for one mint.
func (h *Handlers) GetToken(w http.ResponseWriter, r *http.Request) {
	mint, ok := pathKey(w, r, "mint")
	if !ok {
		return
	}
	info, err := h.cfg.Tokens.Resolve(r.Context(), mint)
	if errors.Is(err, token.ErrMintNotFound) {
		writeError(w, http.StatusNotFound, "mint_not_found", "")
		return
	}
	if err != nil {
		h.reportError(r, "get token", err)
		writeError(w, http.StatusBadGateway, "upstream_unavailable", "failed to fetch token info")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// GetPrice serves a USD quote by symbol and/or mint.
func (h *Handlers) GetPrice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	quote, err := h.cfg.Prices.Lookup(r.Context(), q.Get("symbol"), q.Get("mint"))
	if errors.Is(err, price.ErrNoFeed) {
		writeJSON(w, http.StatusOK, &price.Quote{})
		return
	}
	if err != nil {
		h.log.Warn("api: price lookup failed", "symbol", q.Get("symbol"), "mint", q.Get("mint"), "error", err)
		writeError(w, http.StatusBadGateway, "upstream_unavailable", "failed to fetch price")
		return
	}
	writeJSON(w, http.StatusOK, quote)
}
