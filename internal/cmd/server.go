package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/mkthub/edi/internal/models"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

func setupServer(services *Services, config *Config) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	mux.HandleFunc("/v1/queue/peek", handlePeek(services))
	mux.HandleFunc("/v1/queue/dequeue", handleDequeue(services))
	setupHealthCheck(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", config.Server.Port),
		Handler: c.Handler(mux),
	}
}

func queryActor(r *http.Request) (models.Actor, error) {
	actor := models.Actor{
		Number: r.URL.Query().Get("actor"),
		Role:   models.ActorRole(r.URL.Query().Get("role")),
	}
	if actor.Number == "" || !actor.Role.Valid() {
		return models.Actor{}, fmt.Errorf("actor and valid role query parameters are required")
	}
	return actor, nil
}

func handlePeek(services *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		actor, err := queryActor(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		bundle, err := services.Bundler.Peek(r.Context(), actor)
		if err != nil {
			log.Error().Err(err).Msg("peek failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if bundle == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, bundle)
	}
}

type dequeueRequest struct {
	Actor    string           `json:"actor"`
	Role     models.ActorRole `json:"role"`
	BundleID uuid.UUID        `json:"bundle_id"`
}

type dequeueResponse struct {
	BundleID   uuid.UUID `json:"bundle_id"`
	StorageRef string    `json:"storage_ref"`
}

func handleDequeue(services *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req dequeueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		actor := models.Actor{Number: req.Actor, Role: req.Role}
		if actor.Number == "" || !actor.Role.Valid() {
			http.Error(w, "actor and valid role are required", http.StatusBadRequest)
			return
		}

		ref, ok, err := services.Bundler.Dequeue(r.Context(), actor, req.BundleID)
		if err != nil {
			log.Error().Err(err).Msg("dequeue failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "bundle not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, dequeueResponse{BundleID: req.BundleID, StorageRef: ref})
	}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
