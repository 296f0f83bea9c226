package api

import (
	"log/slog"
	"net/http"

	"github.com/olehk/movebot/internal/model"
	"github.com/olehk/movebot/internal/store"
)

// BindingsHandler handles user-to-point binding endpoints.
type BindingsHandler struct {
	Store store.Store
}

type linkUserRequest struct {
	PointID int64 `json:"point_id"`
}

// ListPointUsers handles GET /api/points/{id}/users.
func (h *BindingsHandler) ListPointUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	users, err := h.Store.ListPointUsers(r.Context(), id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list point users")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// LinkUser handles PUT /api/users/{chatID}/point, replacing any prior binding.
func (h *BindingsHandler) LinkUser(w http.ResponseWriter, r *http.Request) {
	chatID, ok := pathID(w, r, "chatID")
	if !ok {
		return
	}

	var req linkUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PointID <= 0 {
		jsonError(w, http.StatusBadRequest, "point_id required")
		return
	}

	if _, err := h.Store.GetPoint(r.Context(), req.PointID); err != nil {
		engineError(w, err)
		return
	}

	if err := h.Store.UpsertUser(r.Context(), chatID, "", "", model.RolePoint); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to record user")
		return
	}
	if err := h.Store.LinkUserToPoint(r.Context(), chatID, req.PointID); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to link user")
		return
	}

	slog.Info("user linked to point", "chat", chatID, "point", req.PointID,
		"by", GetClaims(r.Context()).Username)
	jsonResponse(w, http.StatusNoContent, nil)
}

// UnlinkUser handles DELETE /api/users/{chatID}/point.
func (h *BindingsHandler) UnlinkUser(w http.ResponseWriter, r *http.Request) {
	chatID, ok := pathID(w, r, "chatID")
	if !ok {
		return
	}

	if err := h.Store.UnlinkUser(r.Context(), chatID); err != nil {
		engineError(w, err)
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}
