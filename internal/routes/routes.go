package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"shop-assistant/internal/handlers"
)

// RegisterRoutes sets up all application routes
func RegisterRoutes(router *mux.Router, chat *handlers.ChatHandler) {
	// Health endpoints
	router.HandleFunc("/health", handlers.HealthCheckHandler).Methods(http.MethodGet)

	api := router.PathPrefix("/api/chat").Subrouter()
	api.HandleFunc("", chat.Chat).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/guest", chat.GuestChat).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/stream", chat.Stream).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/history", chat.History).Methods(http.MethodGet)
	api.HandleFunc("/clear", chat.Clear).Methods(http.MethodDelete, http.MethodOptions)
	api.HandleFunc("/health", chat.Health).Methods(http.MethodGet)
}
