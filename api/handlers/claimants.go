package handlers

import (
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/malbeclabs/airdrop/airdrop/pkg/claims"
	"github.com/malbeclabs/airdrop/airdrop/pkg/token"
	"github.com/malbeclabs/airdrop/airdrop/pkg/vesting"
	"github.com/malbeclabs/airdrop/api/metrics"
	"github.com/mr-tron/base58"
)

const (
	StatusEligible    = "eligible"
	StatusNotEligible = "not_eligible"
	StatusUnknown     = "unknown"
)

// EligibilityResponse is the claim view of one recipient. Claim is set only
// when Status is "eligible".
type EligibilityResponse struct {
	Status string         `json:"status"`
	Claim  *ClaimResponse `json:"claim,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// ClaimResponse carries amounts as base-unit decimal strings.
type ClaimResponse struct {
	Distributor string   `json:"distributor"`
	Recipient   string   `json:"recipient"`
	Mint        string   `json:"mint"`
	Type        string   `json:"type"`
	Phase       string   `json:"phase"`
	State       string   `json:"state"`
	Proof       []string `json:"proof"`

	AmountUnlocked  string `json:"amountUnlocked"`
	AmountLocked    string `json:"amountLocked"`
	TotalUnlocked   string `json:"totalUnlocked"`
	TotalLocked     string `json:"totalLocked"`
	TotalClaimed    string `json:"totalClaimed"`
	UnlockPerPeriod string `json:"unlockPerPeriod"`

	NextClaimPeriod *string `json:"nextClaimPeriod"`
	CanClaim        bool    `json:"canClaim"`
	ClaimsCount     uint16  `json:"claimsCount"`

	Token     *token.Info       `json:"token,omitempty"`
	Formatted map[string]string `json:"formatted,omitempty"`
	// USD values of the allocation, rounded to cents. Absent without a price.
	USD map[string]string `json:"usd,omitempty"`
}

// GetClaimant serves the eligibility and vesting state of one recipient.
func (h *Handlers) GetClaimant(w http.ResponseWriter, r *http.Request) {
	id, ok := pathKey(w, r, "id")
	if !ok {
		metrics.RecordEligibility("invalid")
		return
	}
	recipient, ok := pathKey(w, r, "address")
	if !ok {
		metrics.RecordEligibility("invalid")
		return
	}

	data, err := h.cfg.Claims.ClaimData(r.Context(), id, recipient)
	var fetchErr *claims.FetchError
	switch {
	case err == nil:
	case errors.Is(err, claims.ErrNotEligible):
		metrics.RecordEligibility(StatusNotEligible)
		writeJSON(w, http.StatusOK, EligibilityResponse{Status: StatusNotEligible})
		return
	case errors.Is(err, claims.ErrDistributorNotFound):
		metrics.RecordEligibility(StatusUnknown)
		writeJSON(w, http.StatusNotFound, EligibilityResponse{Status: StatusUnknown, Error: "distributor_not_found"})
		return
	case errors.Is(err, vesting.ErrConfig):
		metrics.RecordEligibility(StatusUnknown)
		h.log.Warn("api: distributor schedule is invalid", "distributor", id, "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, EligibilityResponse{Status: StatusUnknown, Error: "invalid_distributor_schedule"})
		return
	case errors.As(err, &fetchErr):
		metrics.RecordEligibility(StatusUnknown)
		h.log.Warn("api: claim data fetch failed", "distributor", id, "recipient", recipient, "source", fetchErr.Source, "error", err)
		writeJSON(w, http.StatusBadGateway, EligibilityResponse{Status: StatusUnknown, Error: "upstream_unavailable"})
		return
	default:
		metrics.RecordEligibility(StatusUnknown)
		h.reportError(r, "get claimant", err)
		writeJSON(w, http.StatusInternalServerError, EligibilityResponse{Status: StatusUnknown, Error: "internal_error"})
		return
	}

	resp := newClaimResponse(data)
	if info, err := h.cfg.Tokens.Resolve(r.Context(), data.Distributor.Mint); err != nil {
		h.log.Debug("api: token info unavailable", "mint", data.Distributor.Mint, "error", err)
	} else {
		resp.Token = info
		resp.Formatted = formatAmounts(data.Result, info.Decimals)
		resp.USD = h.usdValues(r, data, info)
	}

	metrics.RecordEligibility(StatusEligible)
	writeJSON(w, http.StatusOK, EligibilityResponse{Status: StatusEligible, Claim: resp})
}

func newClaimResponse(data *claims.ClaimData) *ClaimResponse {
	res := data.Result
	proof := make([]string, len(res.Proof))
	for i, node := range res.Proof {
		proof[i] = base58.Encode(node[:])
	}

	resp := &ClaimResponse{
		Distributor:     data.Distributor.Address.String(),
		Recipient:       data.Recipient.String(),
		Mint:            data.Distributor.Mint.String(),
		Type:            res.Kind.String(),
		Phase:           res.Phase.String(),
		State:           res.State,
		Proof:           proof,
		AmountUnlocked:  amountString(res.AmountUnlocked),
		AmountLocked:    amountString(res.AmountLocked),
		TotalUnlocked:   amountString(res.TotalUnlocked),
		TotalLocked:     amountString(res.TotalLocked),
		TotalClaimed:    amountString(res.TotalClaimed),
		UnlockPerPeriod: amountString(res.UnlockPerPeriod),
		CanClaim:        res.CanClaim,
		ClaimsCount:     res.ClaimsCount,
	}
	if res.NextClaimPeriod != nil {
		next := res.NextClaimPeriod.UTC().Format(time.RFC3339)
		resp.NextClaimPeriod = &next
	}
	return resp
}

func formatAmounts(res vesting.Result, decimals uint8) map[string]string {
	return map[string]string{
		"amountUnlocked":  token.FormatAmount(res.AmountUnlocked, decimals),
		"amountLocked":    token.FormatAmount(res.AmountLocked, decimals),
		"totalUnlocked":   token.FormatAmount(res.TotalUnlocked, decimals),
		"totalLocked":     token.FormatAmount(res.TotalLocked, decimals),
		"totalClaimed":    token.FormatAmount(res.TotalClaimed, decimals),
		"unlockPerPeriod": token.FormatAmount(res.UnlockPerPeriod, decimals),
	}
}

// usdValues prices the allocation cards: total, unlocked, claimed and locked.
func (h *Handlers) usdValues(r *http.Request, data *claims.ClaimData, info *token.Info) map[string]string {
	quote, err := h.cfg.Prices.Lookup(r.Context(), info.Symbol, data.Distributor.Mint.String())
	if err != nil {
		h.log.Debug("api: price unavailable", "symbol", info.Symbol, "mint", data.Distributor.Mint, "error", err)
		return nil
	}
	res := data.Result
	total := new(big.Int).Add(orZero(res.AmountUnlocked), orZero(res.AmountLocked))
	amounts := map[string]*big.Int{
		"total":    total,
		"unlocked": res.TotalUnlocked,
		"claimed":  res.TotalClaimed,
		"locked":   res.TotalLocked,
	}
	out := make(map[string]string, len(amounts))
	for name, amount := range amounts {
		v, ok := quote.Value(token.ToDecimal(amount, info.Decimals))
		if !ok {
			return nil
		}
		out[name] = v.StringFixed(2)
	}
	return out
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
