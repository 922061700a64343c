package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"neplus.org/internal/collab"
	"neplus.org/internal/ids"
)

type createCollaborationRequest struct {
	ID    string        `json:"id"`
	Type  string        `json:"type"`
	Rules *collab.Rules `json:"rules"`
}

type joinCollaborationRequest struct {
	Participant string `json:"participant"`
	Role        string `json:"role"`
}

type createTaskRequest struct {
	Data map[string]any `json:"data"`
}

type sessionVoteRequest struct {
	Proposal string `json:"proposal"`
	Support  bool   `json:"support"`
}

type collaborationView struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	Status       string            `json:"status"`
	Rules        collab.Rules      `json:"rules"`
	Participants map[string]string `json:"participants"`
}

func viewOf(s *collab.Session) collaborationView {
	return collaborationView{
		ID:           s.ID(),
		Type:         string(s.Type()),
		Status:       string(s.Status()),
		Rules:        s.Rules(),
		Participants: s.Participants(),
	}
}

func (a *API) handleCollaborationsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createCollaboration(w, r)
	case http.MethodGet:
		a.listActiveCollaborations(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createCollaboration(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}
	var req createCollaborationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = ids.New()
	}
	typ := collab.Type(strings.TrimSpace(req.Type))
	var rules collab.Rules
	switch {
	case req.Rules != nil:
		rules = *req.Rules
	case typ == collab.TypeResource:
		rules = collab.DefaultResourceExchangeRules()
	default:
		rules = collab.DefaultProjectRules()
	}

	session, err := a.collab.InitializeCollaboration(r.Context(), id, typ, rules, actor)
	if err != nil {
		handleCollabError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/collaborations/"+session.ID())
	writeJSON(w, http.StatusCreated, viewOf(session))
}

func (a *API) listActiveCollaborations(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireActor(w, r); !ok {
		return
	}
	sessions := a.collab.ActiveCollaborations()
	items := make([]collaborationView, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, viewOf(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleCollaborationResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/collaborations/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		session, ok := a.collab.Get(id)
		if !ok {
			writeError(w, r, http.StatusNotFound, "collaboration not found")
			return
		}
		writeJSON(w, http.StatusOK, viewOf(session))
		return
	}

	switch parts[1] {
	case "participants":
		a.joinCollaboration(w, r, id)
	case "tasks":
		a.handleCollaborationTasks(w, r, id, parts[2:])
	case "votes":
		a.submitSessionVote(w, r, id)
	case "complete":
		a.completeCollaboration(w, r, id)
	case "cancel":
		a.cancelCollaboration(w, r, id)
	case "metrics":
		a.collaborationMetrics(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) joinCollaboration(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}
	var req joinCollaborationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	participant := strings.TrimSpace(req.Participant)
	if participant == "" {
		participant = actor
	}
	if err := a.collab.JoinCollaboration(r.Context(), id, participant, strings.TrimSpace(req.Role)); err != nil {
		handleCollabError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"collaboration": id,
		"participant":   participant,
	})
}

func (a *API) handleCollaborationTasks(w http.ResponseWriter, r *http.Request, id string, rest []string) {
	session, ok := a.collab.Get(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "collaboration not found")
		return
	}
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}

	switch {
	case len(rest) == 0:
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		// The task payload is optional.
		var req createTaskRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		taskID, err := session.CreateTask(r.Context(), actor, req.Data)
		if err != nil {
			handleCollabError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"task_id": taskID})
	case len(rest) == 2 && rest[1] == "complete":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if err := session.CompleteTask(r.Context(), actor, rest[0]); err != nil {
			handleCollabError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case len(rest) == 2 && rest[1] == "review":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if err := session.ReviewTask(r.Context(), actor, rest[0]); err != nil {
			handleCollabError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) submitSessionVote(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}
	session, found := a.collab.Get(id)
	if !found {
		writeError(w, r, http.StatusNotFound, "collaboration not found")
		return
	}
	var req sessionVoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Proposal) == "" {
		writeError(w, r, http.StatusBadRequest, "proposal is required")
		return
	}
	met, err := session.SubmitVote(r.Context(), actor, req.Proposal, req.Support)
	if err != nil {
		handleCollabError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"proposal":      req.Proposal,
		"threshold_met": met,
	})
}

func (a *API) completeCollaboration(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requireActor(w, r); !ok {
		return
	}
	session, found := a.collab.Get(id)
	if !found {
		writeError(w, r, http.StatusNotFound, "collaboration not found")
		return
	}
	if err := session.Complete(r.Context()); err != nil {
		handleCollabError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(session))
}

func (a *API) cancelCollaboration(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requireActor(w, r); !ok {
		return
	}
	session, found := a.collab.Get(id)
	if !found {
		writeError(w, r, http.StatusNotFound, "collaboration not found")
		return
	}
	if err := session.Cancel(r.Context()); err != nil {
		handleCollabError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(session))
}

func (a *API) collaborationMetrics(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireActor(w, r); !ok {
		return
	}
	metrics, err := a.collab.SessionMetrics(id)
	if err != nil {
		handleCollabError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func handleCollabError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, collab.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, collab.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, collab.ErrExists):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, collab.ErrCapacityExceeded),
		errors.Is(err, collab.ErrNotActive),
		errors.Is(err, collab.ErrReviewIncomplete):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, collab.ErrInvalidRole):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, collab.ErrNotParticipant):
		writeError(w, r, http.StatusForbidden, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
