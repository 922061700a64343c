package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"neplus.org/internal/access"
	"neplus.org/internal/token"
)

type mintRequest struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type transferTokensRequest struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type lockRequest struct {
	Locked bool `json:"locked"`
}

func (a *API) handleTokenMint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requirePermission(w, r, access.PermManagePlatform); !ok {
		return
	}
	var req mintRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	to := strings.TrimSpace(req.To)
	if to == "" {
		writeError(w, r, http.StatusBadRequest, "to is required")
		return
	}
	if err := a.supply.Mint(r.Context(), to, req.Amount); err != nil {
		handleTokenError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"to":      to,
		"amount":  req.Amount,
		"balance": a.supply.Balance(to),
	})
}

func (a *API) handleTokenTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}
	var req transferTokensRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	to := strings.TrimSpace(req.To)
	if to == "" {
		writeError(w, r, http.StatusBadRequest, "to is required")
		return
	}
	// Transfers always debit the caller.
	if err := a.supply.Transfer(r.Context(), actor, to, req.Amount); err != nil {
		handleTokenError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"from":   actor,
		"to":     to,
		"amount": req.Amount,
	})
}

func (a *API) handleTokenLock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requirePermission(w, r, access.PermManagePlatform); !ok {
		return
	}
	var req lockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	a.supply.SetLocked(req.Locked)
	writeJSON(w, http.StatusOK, map[string]any{"locked": req.Locked})
}

func (a *API) handleTokenSupply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireActor(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":      a.supply.Symbol(),
		"max_supply":  a.supply.MaxSupply(),
		"circulating": a.supply.Circulating(),
		"locked":      a.supply.Locked(),
	})
}

func (a *API) handleTokenBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	account := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/tokens/balances/"), "/")
	if account == "" || strings.Contains(account, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}
	// Balances are private: own account or analytics access.
	if actor != account && !a.access.HasPermission(actor, access.PermViewAnalytics) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": account,
		"symbol":  a.supply.Symbol(),
		"balance": a.supply.Balance(account),
	})
}

func handleTokenError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, token.ErrInvalidAmount):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, token.ErrInsufficientFunds),
		errors.Is(err, token.ErrSupplyExceeded),
		errors.Is(err, token.ErrTransferLocked):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
