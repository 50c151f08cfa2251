package transport

import "net/http"

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.notifications.ListForUser(r.Context(), claimsFrom(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(notifications))
}
