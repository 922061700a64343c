package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"neplus.org/internal/access"
	"neplus.org/internal/governance"
)

type createProposalRequest struct {
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Changes     map[string]any `json:"changes"`
}

type castVoteRequest struct {
	Support bool  `json:"support"`
	Weight  int64 `json:"weight"`
}

type delegateRequest struct {
	To string `json:"to"`
}

func (a *API) handleProposalsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}
	var req createProposalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, r, http.StatusBadRequest, "title is required")
		return
	}

	proposal, err := a.governance.CreateProposal(r.Context(), actor,
		governance.ProposalType(strings.TrimSpace(req.Type)),
		governance.ProposalData{
			Title:       req.Title,
			Description: req.Description,
			Changes:     req.Changes,
		})
	if err != nil {
		handleGovernanceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/proposals/"+proposal.ID)
	writeJSON(w, http.StatusCreated, proposal)
}

func (a *API) handleProposalResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/proposals/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		proposal, err := a.governance.GetProposal(id)
		if err != nil {
			handleGovernanceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, proposal)
	case len(parts) == 2 && parts[1] == "votes":
		a.handleProposalVotes(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleProposalVotes(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		votes, err := a.governance.ProposalVotes(id)
		if err != nil {
			handleGovernanceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": votes})
	case http.MethodPost:
		actor, ok := a.requireActor(w, r)
		if !ok {
			return
		}
		var req castVoteRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		proposal, err := a.governance.CastVote(r.Context(), actor, id, req.Support, req.Weight)
		if err != nil {
			handleGovernanceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, proposal)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleDelegations(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req delegateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		to := strings.TrimSpace(req.To)
		if to == "" {
			writeError(w, r, http.StatusBadRequest, "to is required")
			return
		}
		if err := a.governance.DelegateVote(r.Context(), actor, to); err != nil {
			handleGovernanceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"from": actor, "to": to})
	case http.MethodDelete:
		if err := a.governance.RevokeDelegation(r.Context(), actor); err != nil {
			handleGovernanceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handleGovernanceMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireActor(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.governance.GetMetrics())
}

func (a *API) handleGovernanceSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requirePermission(w, r, access.PermManagePlatform); !ok {
		return
	}
	swept := a.governance.SweepExpired(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"swept": swept})
}

func handleGovernanceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, governance.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, governance.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, governance.ErrNotActive),
		errors.Is(err, governance.ErrVotingClosed),
		errors.Is(err, governance.ErrAlreadyDelegated):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, governance.ErrSelfDelegation),
		errors.Is(err, governance.ErrNoDelegation):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
