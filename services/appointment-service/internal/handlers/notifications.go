package handlers

import (
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
)

type notificationResponse struct {
	ID            string         `json:"id"`
	AppointmentID string         `json:"appointment_id,omitempty"`
	Kind          string         `json:"kind"`
	Payload       map[string]any `json:"payload"`
	Channels      []string       `json:"channels"`
	Read          bool           `json:"read"`
	CreatedAt     string         `json:"created_at"`
	ReadAt        string         `json:"read_at,omitempty"`
}

func toNotificationResponse(n model.Notification) notificationResponse {
	resp := notificationResponse{
		ID:            n.ID,
		AppointmentID: n.AppointmentID,
		Kind:          string(n.Kind),
		Payload:       n.Payload,
		Read:          n.Read,
		CreatedAt:     n.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, ch := range n.Channels {
		resp.Channels = append(resp.Channels, string(ch))
	}
	if n.ReadAt != nil {
		resp.ReadAt = n.ReadAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// ListNotifications returns the caller's inbox, newest first.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit <= 0 {
			h.writeError(w, r, model.Invalid("limit", "must be a positive integer"))
			return
		}
	}
	notes, err := h.store.ListNotifications(r.Context(), actor.ID, unread, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]notificationResponse, 0, len(notes))
	for _, n := range notes {
		out = append(out, toNotificationResponse(n))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "notificationID"))
	if err := h.store.MarkNotificationRead(r.Context(), id, actor.ID, h.now().UTC()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type contactRequest struct {
	Email string `json:"email"`
}

// PutContact stores the caller's email address for the email channel.
func (h *Handler) PutContact(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req contactRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	email := strings.TrimSpace(req.Email)
	if err := validateEmail(email); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.store.UpsertContact(r.Context(), actor.ID, email); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": actor.ID, "email": email})
}

func validateEmail(raw string) error {
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return model.Invalid("email", "must be a plain email address")
	}
	return nil
}
