package httpapi

import (
	"net/http"
	"strings"

	"slotswapper.dev/internal/swap"
)

func (a *API) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, ok := a.identity(w, r)
	if !ok {
		return
	}
	items, err := a.svc.Notifications(r.Context(), id.UserID)
	if err != nil {
		handleSwapError(w, r, err)
		return
	}
	if items == nil {
		items = []swap.Notification{}
	}
	writeData(w, http.StatusOK, "Notifications fetched", items)
}

func (a *API) handleNotificationResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/notifications/")
	notifID, ok := strings.CutSuffix(path, "/read")
	if !ok || notifID == "" || strings.Contains(notifID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, idOK := a.identity(w, r)
	if !idOK {
		return
	}
	if err := a.svc.MarkNotificationRead(r.Context(), notifID, id.UserID); err != nil {
		handleSwapError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Notification marked as read", nil)
}
