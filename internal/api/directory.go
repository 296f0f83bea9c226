package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/olehk/movebot/internal/model"
	"github.com/olehk/movebot/internal/store"
)

// DirectoryHandler handles city and point endpoints.
type DirectoryHandler struct {
	Store store.Store
}

type addCityRequest struct {
	Name string `json:"name"`
}

type addPointRequest struct {
	CityID int64  `json:"city_id"`
	Name   string `json:"name"`
}

// ListCities handles GET /api/cities.
func (h *DirectoryHandler) ListCities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.Store.ListCities(r.Context())
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list cities")
		return
	}
	if cities == nil {
		cities = []model.City{}
	}
	jsonResponse(w, http.StatusOK, cities)
}

// AddCity handles POST /api/cities.
func (h *DirectoryHandler) AddCity(w http.ResponseWriter, r *http.Request) {
	var req addCityRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	city, err := h.Store.AddCity(r.Context(), req.Name)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "failed to add city")
		return
	}

	slog.Info("city added", "city", city.Name, "by", GetClaims(r.Context()).Username)
	jsonResponse(w, http.StatusCreated, city)
}

// DeleteCity handles DELETE /api/cities/{id}. Points in the city and their
// bindings go with it.
func (h *DirectoryHandler) DeleteCity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.Store.DeleteCity(r.Context(), id); err != nil {
		engineError(w, err)
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}

// ListPoints handles GET /api/points?city_id=N.
func (h *DirectoryHandler) ListPoints(w http.ResponseWriter, r *http.Request) {
	cityID, err := strconv.ParseInt(r.URL.Query().Get("city_id"), 10, 64)
	if err != nil || cityID <= 0 {
		jsonError(w, http.StatusBadRequest, "city_id required")
		return
	}

	points, err := h.Store.ListPoints(r.Context(), cityID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list points")
		return
	}
	if points == nil {
		points = []model.Point{}
	}
	jsonResponse(w, http.StatusOK, points)
}

// AddPoint handles POST /api/points.
func (h *DirectoryHandler) AddPoint(w http.ResponseWriter, r *http.Request) {
	var req addPointRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CityID <= 0 || req.Name == "" {
		jsonError(w, http.StatusBadRequest, "city_id and name required")
		return
	}

	point, err := h.Store.AddPoint(r.Context(), req.CityID, req.Name)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "failed to add point")
		return
	}

	slog.Info("point added", "point", point.Name, "by", GetClaims(r.Context()).Username)
	jsonResponse(w, http.StatusCreated, point)
}

// DeletePoint handles DELETE /api/points/{id}.
func (h *DirectoryHandler) DeletePoint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.Store.DeletePoint(r.Context(), id); err != nil {
		engineError(w, err)
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}
