package api

import (
	"net/http"

	"github.com/erazemk/najdbe/internal/auth"
	"github.com/erazemk/najdbe/internal/catalog"
	"github.com/erazemk/najdbe/internal/model"
	"github.com/erazemk/najdbe/internal/store"
)

// Deps are the services the API serves.
type Deps struct {
	Catalog  *catalog.Service
	Accounts *store.Accounts
	Gateway  auth.Gateway

	// Issuer signs local session tokens. When nil, login and account
	// management are not served and principals come only from Gateway.
	Issuer *auth.Issuer
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	reports := &ReportsHandler{Catalog: d.Catalog}
	authMW := AuthMiddleware(d.Gateway)
	requireAdmin := RequireRole(model.RoleAdmin)

	if d.Issuer != nil {
		authHandler := &AuthHandler{Accounts: d.Accounts, Issuer: d.Issuer}
		usersHandler := &UsersHandler{Accounts: d.Accounts}

		// Public: login.
		mux.HandleFunc("POST /api/auth/login", authHandler.Login)

		mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))
		mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))

		// Users (admin only).
		mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
		mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
		mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))
	}

	// Queries are public; everything that changes a report needs a principal.
	mux.HandleFunc("GET /api/reports/{kind}", reports.List)
	mux.HandleFunc("GET /api/reports/{kind}/{id}", reports.Get)
	mux.HandleFunc("GET /api/images/{ref...}", reports.GetImage)

	mux.Handle("POST /api/reports/{kind}", authMW(http.HandlerFunc(reports.Create)))
	mux.Handle("PUT /api/reports/{kind}/{id}", authMW(http.HandlerFunc(reports.Update)))
	mux.Handle("GET /api/reports/{kind}/{id}/history", authMW(http.HandlerFunc(reports.History)))
	mux.Handle("POST /api/reports/{kind}/{id}/archive", authMW(http.HandlerFunc(reports.Archive)))
	mux.Handle("POST /api/reports/{kind}/{id}/reopen", authMW(http.HandlerFunc(reports.Reopen)))
	mux.Handle("PUT /api/reports/{kind}/{id}/image", authMW(http.HandlerFunc(reports.UploadImage)))
	mux.Handle("POST /api/reports/lost/{id}/resolve", authMW(http.HandlerFunc(reports.Resolve)))
	mux.Handle("POST /api/claims", authMW(http.HandlerFunc(reports.Claim)))

	return mux
}
