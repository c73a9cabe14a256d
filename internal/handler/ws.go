package handler

import (
	"net/http"

	"github.com/gamemart/ledger/internal/infra"
)

// WSHandler upgrades authenticated clients to the notification socket.
type WSHandler struct {
	hub *infra.WSHub
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *infra.WSHub) *WSHandler {
	return &WSHandler{hub: hub}
}

// Serve handles GET /ws?token=.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID, role, err := callerFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	h.hub.ServeWS(w, r, userID.String(), string(role))
}
