package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/viant/sqlite-kdtree/vec"
	"github.com/viant/sqlite-kdtree/vector"
)

const defaultK = 10

// Server exposes a document store over HTTP.
type Server struct {
	store  *vector.SQLiteStore
	router *mux.Router
}

// Document is the JSON form of vector.Document.
type Document struct {
	ID        string    `json:"id"`
	Content   string    `json:"content,omitempty"`
	Metadata  string    `json:"metadata,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
	Score     float64   `json:"score,omitempty"`
}

// New creates a Server over store.
func New(store *vector.SQLiteStore) *Server {
	s := &Server{store: store, router: mux.NewRouter()}
	s.router.Use(logRequests)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/documents", s.handleAdd).Methods("POST")
	s.router.HandleFunc("/documents/{id}", s.handleRemove).Methods("DELETE")
	s.router.HandleFunc("/search", s.handleSearch).Methods("GET")
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Printf("listening on %s", addr)
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Len(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "documents": n})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var docs []Document
	if err := json.NewDecoder(r.Body).Decode(&docs); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	in := make([]vector.Document, len(docs))
	for i, d := range docs {
		in[i] = vector.Document{ID: d.ID, Content: d.Content, Metadata: d.Metadata, Embedding: d.Embedding}
	}
	ids, err := s.store.AddDocuments(r.Context(), in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ids": ids})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Remove(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query, err := vec.ParseVector(r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	k := defaultK
	if raw := r.URL.Query().Get("k"); raw != "" {
		if k, err = strconv.Atoi(raw); err != nil || k <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("k must be a positive integer"))
			return
		}
	}
	found, err := s.store.SimilaritySearch(r.Context(), query, k)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	out := make([]Document, len(found))
	for i, d := range found {
		out[i] = Document{ID: d.ID, Content: d.Content, Metadata: d.Metadata, Embedding: d.Embedding, Score: d.Score}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}
