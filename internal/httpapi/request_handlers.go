package httpapi

import (
	"net/http"
	"strings"

	"slotswapper.dev/internal/audit"
	"slotswapper.dev/internal/swap"
)

func (a *API) handleRequestsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createRequest(w, r)
	case http.MethodGet:
		a.listIncomingRequests(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleRequestResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/requests/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if path == "my-request" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listOutgoingRequests(w, r)
		return
	}

	if id, ok := strings.CutSuffix(path, "/approve"); ok && id != "" && !strings.Contains(id, "/") {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.approveRequest(w, r, id)
		return
	}
	if id, ok := strings.CutSuffix(path, "/reject"); ok && id != "" && !strings.Contains(id, "/") {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.rejectRequest(w, r, id)
		return
	}

	writeError(w, r, http.StatusNotFound, "resource not found")
}

func (a *API) createRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := a.identity(w, r)
	if !ok {
		return
	}
	var in swap.RequestInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	view, err := a.svc.CreateRequest(r.Context(), id.UserID, in)
	if err != nil {
		handleSwapError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "swap.request.create", map[string]any{
		"request_id": view.ID,
		"event_id":   view.Event.ID,
		"to":         view.To.ID,
	})

	writeData(w, http.StatusCreated, "Request created", view)
}

func (a *API) listIncomingRequests(w http.ResponseWriter, r *http.Request) {
	id, ok := a.identity(w, r)
	if !ok {
		return
	}
	views, err := a.svc.ListIncomingRequests(r.Context(), id.UserID, r.URL.Query().Get("status"))
	if err != nil {
		handleSwapError(w, r, err)
		return
	}
	if views == nil {
		views = []swap.RequestView{}
	}
	writeData(w, http.StatusOK, "Requests fetched", views)
}

func (a *API) listOutgoingRequests(w http.ResponseWriter, r *http.Request) {
	id, ok := a.identity(w, r)
	if !ok {
		return
	}
	views, err := a.svc.ListOutgoingRequests(r.Context(), id.UserID, r.URL.Query().Get("status"))
	if err != nil {
		handleSwapError(w, r, err)
		return
	}
	if views == nil {
		views = []swap.RequestView{}
	}
	writeData(w, http.StatusOK, "Requests fetched", views)
}

func (a *API) approveRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	id, ok := a.identity(w, r)
	if !ok {
		return
	}
	view, err := a.svc.ApproveRequest(r.Context(), id.UserID, requestID)
	if err != nil {
		handleSwapError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "swap.request.approve", map[string]any{
		"request_id": view.ID,
		"event_id":   view.Event.ID,
	})

	writeData(w, http.StatusOK, "Request approved", view)
}

func (a *API) rejectRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	id, ok := a.identity(w, r)
	if !ok {
		return
	}
	view, err := a.svc.RejectRequest(r.Context(), id.UserID, requestID)
	if err != nil {
		handleSwapError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "swap.request.reject", map[string]any{
		"request_id": view.ID,
		"event_id":   view.Event.ID,
	})

	writeData(w, http.StatusOK, "Request rejected", view)
}
