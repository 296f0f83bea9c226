// Package api is the operator-facing HTTP surface: move management, the
// point directory, and user-to-point bindings, authenticated with JWT.
package api

import (
	"net/http"

	"github.com/olehk/movebot/internal/engine"
	"github.com/olehk/movebot/internal/model"
	"github.com/olehk/movebot/internal/store"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(st store.Store, eng *engine.Engine, jwtSecret string) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{Store: st, JWTSecret: jwtSecret}
	movesHandler := &MovesHandler{Store: st, Engine: eng}
	directoryHandler := &DirectoryHandler{Store: st}
	bindingsHandler := &BindingsHandler{Store: st}

	authMW := AuthMiddleware(jwtSecret)
	requireAdmin := RequireRole(model.OperatorRoleAdmin)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Operator accounts (admin only).
	mux.Handle("POST /api/operators", authMW(requireAdmin(http.HandlerFunc(authHandler.CreateOperator))))

	// Moves (any operator).
	mux.Handle("POST /api/moves", authMW(http.HandlerFunc(movesHandler.Create)))
	mux.Handle("GET /api/moves", authMW(http.HandlerFunc(movesHandler.List)))
	mux.Handle("GET /api/moves/{id}", authMW(http.HandlerFunc(movesHandler.Get)))
	mux.Handle("GET /api/moves/{id}/photos", authMW(http.HandlerFunc(movesHandler.ListPhotos)))
	mux.Handle("PUT /api/moves/{id}/route", authMW(http.HandlerFunc(movesHandler.SetRoute)))
	mux.Handle("PUT /api/moves/{id}/note", authMW(http.HandlerFunc(movesHandler.SetNote)))
	mux.Handle("PUT /api/moves/{id}/photos", authMW(http.HandlerFunc(movesHandler.AttachPhotos)))
	mux.Handle("POST /api/moves/{id}/send", authMW(http.HandlerFunc(movesHandler.Send)))
	mux.Handle("POST /api/moves/{id}/reinvoice", authMW(http.HandlerFunc(movesHandler.Reinvoice)))
	mux.Handle("POST /api/moves/{id}/close", authMW(http.HandlerFunc(movesHandler.Close)))
	mux.Handle("POST /api/moves/{id}/cancel", authMW(http.HandlerFunc(movesHandler.Cancel)))

	// Directory: read (any operator), write (admin).
	mux.Handle("GET /api/cities", authMW(http.HandlerFunc(directoryHandler.ListCities)))
	mux.Handle("POST /api/cities", authMW(requireAdmin(http.HandlerFunc(directoryHandler.AddCity))))
	mux.Handle("DELETE /api/cities/{id}", authMW(requireAdmin(http.HandlerFunc(directoryHandler.DeleteCity))))
	mux.Handle("GET /api/points", authMW(http.HandlerFunc(directoryHandler.ListPoints)))
	mux.Handle("POST /api/points", authMW(requireAdmin(http.HandlerFunc(directoryHandler.AddPoint))))
	mux.Handle("DELETE /api/points/{id}", authMW(requireAdmin(http.HandlerFunc(directoryHandler.DeletePoint))))

	// Bindings (admin).
	mux.Handle("GET /api/points/{id}/users", authMW(requireAdmin(http.HandlerFunc(bindingsHandler.ListPointUsers))))
	mux.Handle("PUT /api/users/{chatID}/point", authMW(requireAdmin(http.HandlerFunc(bindingsHandler.LinkUser))))
	mux.Handle("DELETE /api/users/{chatID}/point", authMW(requireAdmin(http.HandlerFunc(bindingsHandler.UnlinkUser))))

	return mux
}
