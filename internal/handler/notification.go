package handler

import (
	"context"
	"net/http"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/repository"
	"github.com/google/uuid"
)

// Inbox reads and acknowledges a user's notifications.
type Inbox interface {
	List(ctx context.Context, userID uuid.UUID, page repository.Page) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
}

// NotificationHandler serves the notification inbox.
type NotificationHandler struct {
	inbox Inbox
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(inbox Inbox) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

// List handles GET /notifications.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	items, err := h.inbox.List(r.Context(), userID, PageFromQuery(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	if items == nil {
		items = []domain.Notification{}
	}
	RespondJSON(w, http.StatusOK, items)
}

// MarkRead handles POST /notifications/{id}/read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	id, err := URLUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}

	if err := h.inbox.MarkRead(r.Context(), userID, id); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}
