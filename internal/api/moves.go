package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/olehk/movebot/internal/engine"
	"github.com/olehk/movebot/internal/model"
	"github.com/olehk/movebot/internal/store"
)

// MovesHandler handles move endpoints.
type MovesHandler struct {
	Store  store.Store
	Engine *engine.Engine
}

type setRouteRequest struct {
	FromPointID int64 `json:"from_point_id"`
	ToPointID   int64 `json:"to_point_id"`
}

type setNoteRequest struct {
	Note string `json:"note"`
}

type photosRequest struct {
	Refs []string `json:"refs"`
}

// Create handles POST /api/moves.
func (h *MovesHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	m, err := h.Engine.Create(r.Context(), claims.OperatorID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to create move")
		return
	}

	slog.Info("move created via api", "move", m.ID, "operator", claims.Username)
	jsonResponse(w, http.StatusCreated, m)
}

// List handles GET /api/moves. The scope query parameter selects all,
// active, or closed moves.
func (h *MovesHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	var (
		moves []model.Move
		err   error
	)
	switch scope := r.URL.Query().Get("scope"); scope {
	case "", "all":
		moves, err = h.Store.ListMoves(r.Context(), limit)
	case "active":
		moves, err = h.Store.ListMovesActive(r.Context(), limit)
	case "closed":
		moves, err = h.Store.ListMovesClosed(r.Context(), limit)
	default:
		jsonError(w, http.StatusBadRequest, "invalid scope")
		return
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list moves")
		return
	}
	if moves == nil {
		moves = []model.Move{}
	}
	jsonResponse(w, http.StatusOK, moves)
}

// Get handles GET /api/moves/{id}.
func (h *MovesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	m, err := h.Store.GetMove(r.Context(), id)
	if err != nil {
		engineError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, m)
}

// ListPhotos handles GET /api/moves/{id}/photos. Without a version query
// parameter it returns the current version's set.
func (h *MovesHandler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	m, err := h.Store.GetMove(r.Context(), id)
	if err != nil {
		engineError(w, err)
		return
	}

	version := m.InvoiceVersion
	if v := r.URL.Query().Get("version"); v != "" {
		version, err = strconv.Atoi(v)
		if err != nil || version <= 0 {
			jsonError(w, http.StatusBadRequest, "invalid version")
			return
		}
	}

	refs, err := h.Store.ListPhotos(r.Context(), id, version)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list photos")
		return
	}
	versions, err := h.Store.ListPhotoVersions(r.Context(), id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list photo versions")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"version":  version,
		"refs":     refs,
		"versions": versions,
	})
}

// SetRoute handles PUT /api/moves/{id}/route.
func (h *MovesHandler) SetRoute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req setRouteRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FromPointID <= 0 || req.ToPointID <= 0 {
		jsonError(w, http.StatusBadRequest, "from_point_id and to_point_id are required and must be positive")
		return
	}
	if req.FromPointID == req.ToPointID {
		jsonError(w, http.StatusBadRequest, "source and destination must differ")
		return
	}

	for _, pointID := range []int64{req.FromPointID, req.ToPointID} {
		if _, err := h.Store.GetPoint(r.Context(), pointID); err != nil {
			engineError(w, err)
			return
		}
	}

	if err := h.Engine.SetFrom(r.Context(), id, req.FromPointID); err != nil {
		engineError(w, err)
		return
	}
	if err := h.Engine.SetTo(r.Context(), id, req.ToPointID); err != nil {
		engineError(w, err)
		return
	}

	h.respondWithMove(w, r, id)
}

// SetNote handles PUT /api/moves/{id}/note.
func (h *MovesHandler) SetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req setNoteRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Engine.SetNote(r.Context(), id, req.Note); err != nil {
		engineError(w, err)
		return
	}
	h.respondWithMove(w, r, id)
}

// AttachPhotos handles PUT /api/moves/{id}/photos.
func (h *MovesHandler) AttachPhotos(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req photosRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Engine.AttachPhotos(r.Context(), id, req.Refs); err != nil {
		engineError(w, err)
		return
	}
	h.respondWithMove(w, r, id)
}

// Send handles POST /api/moves/{id}/send.
func (h *MovesHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	res, err := h.Engine.Send(r.Context(), id)
	if err != nil {
		engineError(w, err)
		return
	}

	slog.Info("move sent via api", "move", id, "operator", GetClaims(r.Context()).Username)
	jsonResponse(w, http.StatusOK, res)
}

// Reinvoice handles POST /api/moves/{id}/reinvoice.
func (h *MovesHandler) Reinvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req photosRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.Engine.Reinvoice(r.Context(), id, req.Refs)
	if err != nil {
		engineError(w, err)
		return
	}

	slog.Info("move reinvoiced via api", "move", id,
		"version", res.Move.InvoiceVersion, "operator", GetClaims(r.Context()).Username)
	jsonResponse(w, http.StatusOK, res)
}

// Close handles POST /api/moves/{id}/close.
func (h *MovesHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.Engine.Close(r.Context(), id); err != nil {
		engineError(w, err)
		return
	}
	h.respondWithMove(w, r, id)
}

// Cancel handles POST /api/moves/{id}/cancel.
func (h *MovesHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.Engine.Cancel(r.Context(), id); err != nil {
		engineError(w, err)
		return
	}
	h.respondWithMove(w, r, id)
}

func (h *MovesHandler) respondWithMove(w http.ResponseWriter, r *http.Request, id int64) {
	m, err := h.Store.GetMove(r.Context(), id)
	if err != nil {
		engineError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, m)
}

// pathID parses a positive integer path value, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// engineError maps engine and store failures to HTTP statuses.
func engineError(w http.ResponseWriter, err error) {
	var noRec *engine.NoRecipientsError

	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, http.StatusNotFound, "not found")
	case errors.Is(err, engine.ErrUnauthorized):
		jsonError(w, http.StatusForbidden, "actor is not bound to the required point")
	case errors.Is(err, engine.ErrIncompleteRoute),
		errors.Is(err, engine.ErrNoPhotos),
		errors.Is(err, engine.ErrEmptyPhotoSet):
		jsonError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &noRec):
		jsonError(w, http.StatusConflict, noRec.Error())
	default:
		slog.Error("request failed", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}
