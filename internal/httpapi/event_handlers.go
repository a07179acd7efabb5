package httpapi

import (
	"net/http"
	"strings"

	"slotswapper.dev/internal/swap"
)

func (a *API) handleEventsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createEvent(w, r)
	case http.MethodGet:
		a.listEvents(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleEventResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/events/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if path == "swappable" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listSwappable(w, r)
		return
	}

	// /events/{id}/status/{status}
	if id, status, ok := strings.Cut(path, "/status/"); ok {
		if id == "" || status == "" || strings.Contains(status, "/") {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if r.Method != http.MethodPatch {
			methodNotAllowed(w, r, http.MethodPatch)
			return
		}
		a.updateEventStatus(w, r, id, status)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodPut:
		a.updateEvent(w, r, path)
	case http.MethodDelete:
		a.deleteEvent(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) createEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := a.identity(w, r)
	if !ok {
		return
	}
	var in swap.EventInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ev, err := a.svc.CreateEvent(r.Context(), id.UserID, in)
	if err != nil {
		handleSwapError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Event created", ev)
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := a.identity(w, r)
	if !ok {
		return
	}
	date := r.URL.Query().Get("date")
	if strings.TrimSpace(date) == "" {
		writeError(w, r, http.StatusBadRequest, "date query parameter is required")
		return
	}
	events, err := a.svc.ListEventsForDay(r.Context(), id.UserID, date)
	if err != nil {
		handleSwapError(w, r, err)
		return
	}
	if events == nil {
		events = []swap.Event{}
	}
	writeData(w, http.StatusOK, "Events fetched", events)
}

func (a *API) listSwappable(w http.ResponseWriter, r *http.Request) {
	id, ok := a.identity(w, r)
	if !ok {
		return
	}
	events, err := a.svc.ListSwappableEvents(r.Context(), id.UserID)
	if err != nil {
		handleSwapError(w, r, err)
		return
	}
	if events == nil {
		events = []swap.MarketEvent{}
	}
	writeData(w, http.StatusOK, "Swappable events fetched", events)
}

func (a *API) updateEvent(w http.ResponseWriter, r *http.Request, eventID string) {
	id, ok := a.identity(w, r)
	if !ok {
		return
	}
	var in swap.EventInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ev, err := a.svc.UpdateEvent(r.Context(), eventID, id.UserID, in)
	if err != nil {
		handleSwapError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Event updated", ev)
}

func (a *API) updateEventStatus(w http.ResponseWriter, r *http.Request, eventID, status string) {
	id, ok := a.identity(w, r)
	if !ok {
		return
	}
	ev, err := a.svc.UpdateEventStatus(r.Context(), eventID, id.UserID, swap.EventStatus(status))
	if err != nil {
		handleSwapError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Event status updated", ev)
}

func (a *API) deleteEvent(w http.ResponseWriter, r *http.Request, eventID string) {
	id, ok := a.identity(w, r)
	if !ok {
		return
	}
	if err := a.svc.DeleteEvent(r.Context(), eventID, id.UserID); err != nil {
		handleSwapError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Event deleted", nil)
}
