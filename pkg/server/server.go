// Package server exposes poster boards over a JSON HTTP API.
//
// Each configured variant is backed by one [screen.Screen]. Reads return a
// snapshot of the screen; writes are dispatched to the screen's event loop
// as intents, so HTTP handlers never touch board state directly.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/qqqlq/itf-ensyu/pkg/board"
	perrors "github.com/qqqlq/itf-ensyu/pkg/errors"
	"github.com/qqqlq/itf-ensyu/pkg/screen"
)

// maxBodyBytes bounds intent request bodies.
const maxBodyBytes = 1 << 16

// ImageResolver builds poster image references.
type ImageResolver interface {
	ImageURL(name string) (string, error)
}

// Board is one served variant.
type Board struct {
	Name   string
	Route  string // optional page route aliasing GET /boards/{Name}
	Screen *screen.Screen
	Images ImageResolver
}

// Server routes API requests to boards.
type Server struct {
	boards map[string]*Board
	order  []string
	logger *log.Logger
	router chi.Router
}

// New creates a server for boards. Board names must be unique; a later
// duplicate replaces an earlier one.
func New(boards []Board, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &Server{
		boards: make(map[string]*Board, len(boards)),
		logger: logger,
	}
	for i := range boards {
		b := boards[i]
		if _, dup := s.boards[b.Name]; !dup {
			s.order = append(s.order, b.Name)
		}
		s.boards[b.Name] = &b
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.health)
	r.Get("/variants", s.listVariants)

	r.Route("/boards/{variant}", func(r chi.Router) {
		r.Get("/", s.getBoard)
		r.Post("/posters", s.addPoster)
		r.Post("/posters/{id}/move", s.movePoster)
		r.Post("/posters/{id}/resize", s.resizePoster)
		r.Get("/posters/{id}/image", s.posterImage)
		r.Post("/tags/{tag}/toggle", s.toggleTag)
		r.Delete("/tags/{tag}", s.removeTag)
	})

	for _, name := range s.order {
		b := s.boards[name]
		if b.Route == "" {
			continue
		}
		r.Get(b.Route, func(w http.ResponseWriter, req *http.Request) {
			s.writeSnapshot(w, req, b)
		})
	}
	return r
}

// requestLogger tags each request with an id and logs its outcome.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).Round(time.Microsecond))
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type variantInfo struct {
	Name  string `json:"name"`
	Route string `json:"route,omitempty"`
}

func (s *Server) listVariants(w http.ResponseWriter, r *http.Request) {
	out := make([]variantInfo, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, variantInfo{Name: name, Route: s.boards[name].Route})
	}
	writeJSON(w, http.StatusOK, map[string]any{"variants": out})
}

// board resolves the {variant} URL parameter, writing a 404 if unknown.
func (s *Server) board(w http.ResponseWriter, r *http.Request) (*Board, bool) {
	name := chi.URLParam(r, "variant")
	b, ok := s.boards[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown variant "+strconv.Quote(name))
		return nil, false
	}
	return b, true
}

func (s *Server) getBoard(w http.ResponseWriter, r *http.Request) {
	b, ok := s.board(w, r)
	if !ok {
		return
	}
	s.writeSnapshot(w, r, b)
}

func (s *Server) writeSnapshot(w http.ResponseWriter, r *http.Request, b *Board) {
	snap, err := b.Screen.Snapshot(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) addPoster(w http.ResponseWriter, r *http.Request) {
	b, ok := s.board(w, r)
	if !ok {
		return
	}
	var ent board.Entity
	err := b.Screen.Do(r.Context(), "add", func(e *board.Engine) error {
		ent = e.AddPlaceholder()
		return nil
	})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ent)
}

type moveRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

func (s *Server) movePoster(w http.ResponseWriter, r *http.Request) {
	b, ok := s.board(w, r)
	if !ok {
		return
	}
	id, ok := entityID(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.X == nil || req.Y == nil {
		writeError(w, http.StatusBadRequest, "x and y are required")
		return
	}

	pos := board.Position{X: *req.X, Y: *req.Y}
	s.mutateEntity(w, r, b, "move", id, func(e *board.Engine) error {
		return e.ApplyMove(id, pos)
	})
}

type resizeRequest struct {
	Width *float64 `json:"width"`
	X     *float64 `json:"x,omitempty"`
	Y     *float64 `json:"y,omitempty"`
}

func (s *Server) resizePoster(w http.ResponseWriter, r *http.Request) {
	b, ok := s.board(w, r)
	if !ok {
		return
	}
	id, ok := entityID(w, r)
	if !ok {
		return
	}
	var req resizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Width == nil {
		writeError(w, http.StatusBadRequest, "width is required")
		return
	}
	if (req.X == nil) != (req.Y == nil) {
		writeError(w, http.StatusBadRequest, "x and y must be given together")
		return
	}

	width := *req.Width
	s.mutateEntity(w, r, b, "resize", id, func(e *board.Engine) error {
		if req.X != nil {
			return e.ApplyResizeAt(id, width, board.Position{X: *req.X, Y: *req.Y})
		}
		return e.ApplyResize(id, width)
	})
}

// mutateEntity applies fn and responds with the updated entity.
func (s *Server) mutateEntity(w http.ResponseWriter, r *http.Request, b *Board, op string, id int, fn func(*board.Engine) error) {
	var ent board.Entity
	err := b.Screen.Do(r.Context(), op, func(e *board.Engine) error {
		if err := fn(e); err != nil {
			return err
		}
		ent, _ = e.Entity(id)
		return nil
	})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

func (s *Server) posterImage(w http.ResponseWriter, r *http.Request) {
	b, ok := s.board(w, r)
	if !ok {
		return
	}
	id, ok := entityID(w, r)
	if !ok {
		return
	}
	if b.Images == nil {
		writeError(w, http.StatusNotFound, "images are not available for this board")
		return
	}

	var name string
	err := b.Screen.Do(r.Context(), "image", func(e *board.Engine) error {
		ent, ok := e.Entity(id)
		if !ok {
			return perrors.New(perrors.ErrCodeEntityNotFound, "no entity with id %d", id)
		}
		name = ent.Name
		return nil
	})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	u, err := b.Images.ImageURL(name)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}

func (s *Server) toggleTag(w http.ResponseWriter, r *http.Request) {
	b, ok := s.board(w, r)
	if !ok {
		return
	}
	tag, ok := tagParam(w, r)
	if !ok {
		return
	}
	var selected bool
	err := b.Screen.Do(r.Context(), "toggle", func(e *board.Engine) error {
		selected = e.ToggleTag(tag)
		return nil
	})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tag": tag, "selected": selected})
}

func (s *Server) removeTag(w http.ResponseWriter, r *http.Request) {
	b, ok := s.board(w, r)
	if !ok {
		return
	}
	tag, ok := tagParam(w, r)
	if !ok {
		return
	}
	var removed bool
	err := b.Screen.Do(r.Context(), "remove_tag", func(e *board.Engine) error {
		removed = e.RemoveTagFromUniverse(tag)
		return nil
	})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tag": tag, "removed": removed})
}

func entityID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid poster id "+strconv.Quote(raw))
		return 0, false
	}
	return id, true
}

// tagParam returns the decoded tag segment. chi matches against RawPath when
// the request carries one (e.g. an escaped slash), and against the already
// decoded Path otherwise, so the segment is unescaped only in the first case.
func tagParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	tag := chi.URLParam(r, "tag")
	var err error
	if r.URL.RawPath != "" {
		tag, err = url.PathUnescape(tag)
	}
	if err != nil || tag == "" {
		writeError(w, http.StatusBadRequest, "invalid tag")
		return "", false
	}
	return tag, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// statusFor maps board errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, screen.ErrUnmounted):
		return http.StatusConflict
	case errors.Is(err, screen.ErrStopped):
		return http.StatusServiceUnavailable
	}
	switch perrors.GetCode(err) {
	case perrors.ErrCodeEntityNotFound:
		return http.StatusNotFound
	case perrors.ErrCodeInvalidSize, perrors.ErrCodeInvalidInput, perrors.ErrCodeInvalidName:
		return http.StatusBadRequest
	case perrors.ErrCodeNotLoaded:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	writeJSONError(w, status, string(perrors.GetCode(err)), perrors.UserMessage(err))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]string{"error": message}
	if code != "" {
		payload["code"] = code
	}
	writeJSON(w, status, payload)
}
