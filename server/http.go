package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"othello/bot"
	"othello/match"
)

const (
	maxUploadBytes = 256 * 1024

	// GracefulTimeout bounds how long Shutdown waits for in-flight requests.
	GracefulTimeout = 5 * time.Second
)

// Server ties the bot catalog, the match registry and the websocket gateway
// behind one HTTP listener.
type Server struct {
	addr     string
	catalog  *bot.Catalog
	registry *match.Registry
	gateway  *Gateway
	http     *http.Server
}

func New(addr string, catalog *bot.Catalog, registry *match.Registry) *Server {
	s := &Server{
		addr:     addr,
		catalog:  catalog,
		registry: registry,
		gateway:  NewGateway(registry),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/bots", s.handleListBots)
	mux.HandleFunc("POST /api/bots/upload", s.handleUploadBot)
	mux.HandleFunc("DELETE /api/bots/{name}", s.handleRemoveBot)
	mux.HandleFunc("GET /api/security/log", s.handleSecurityLog)
	mux.HandleFunc("GET /api/matches", s.handleListMatches)
	mux.HandleFunc("GET /ws/{client_id}", s.gateway.ServeWS)
	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	log.Info().Str("addr", s.addr).Msg("server listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains the HTTP server and closes every live match.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.registry.CloseAll()
	return err
}

func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"bots": s.catalog.List()})
}

// handleUploadBot accepts a multipart upload under the "file" field, vets it
// and either registers the bot or rejects the upload with the full violation
// list. Rejected sources are quarantined, never registered.
func (s *Server) handleUploadBot(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "malformed multipart request")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if !strings.HasSuffix(filename, ".lua") {
		writeError(w, http.StatusBadRequest, "only .lua files are accepted")
		return
	}
	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}
	if len(content) > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "bot source too large")
		return
	}

	desc, violations, err := s.catalog.Upload(filename, content, r.RemoteAddr)
	if err != nil {
		if errors.Is(err, bot.ErrBotExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(violations) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"accepted":   false,
			"violations": violations,
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"accepted": true,
		"bot":      desc,
	})
}

func (s *Server) handleRemoveBot(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	err := s.catalog.Remove(name)
	switch {
	case errors.Is(err, bot.ErrBotNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, bot.ErrBuiltinBot):
		writeError(w, http.StatusForbidden, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]any{"removed": name})
	}
}

func (s *Server) handleSecurityLog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.catalog.SecurityLog().Recent(50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"matches": s.registry.IDs()})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("response encoding failed")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
