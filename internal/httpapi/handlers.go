// Package httpapi exposes the session-based viewer over HTTP. Clients
// create a session for a catalog image, steer its viewport with small JSON
// calls and pull rendered frames as PNG.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gigascene/internal/config"
	"gigascene/internal/image_list"
	"gigascene/internal/session"
)

// maxViewDim caps requested viewport dimensions in pixels.
const maxViewDim = 4096

type Handlers struct {
	config  *config.Config
	logger  *zap.Logger
	scanner *image_list.Scanner
	manager *session.Manager
}

func New(config *config.Config, logger *zap.Logger, scanner *image_list.Scanner, manager *session.Manager) *Handlers {
	return &Handlers{
		config:  config,
		logger:  logger,
		scanner: scanner,
		manager: manager,
	}
}

func (h *Handlers) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()

		ip := h.extractIP(r)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		bytes := wrapped.bytesWritten

		h.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("ip", ip),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Int64("bytes", bytes),
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}

func (h *Handlers) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigin := ""

		if h.config.AllowedOrigin != "" {
			allowedOrigin = h.config.AllowedOrigin
		} else {
			host := r.Host
			if origin != "" && strings.HasPrefix(origin, "http://"+host) || strings.HasPrefix(origin, "https://"+host) {
				allowedOrigin = origin
			} else if origin == "" {
				allowedOrigin = "*"
			}
		}

		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) HandleImages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	images := h.scanner.GetImages()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(images)
}

type createSessionRequest struct {
	ImageID string `json:"image_id"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

func (h *Handlers) HandleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if req.ImageID == "" {
		http.Error(w, "Missing image_id", http.StatusBadRequest)
		return
	}
	if h.scanner.GetImageByID(req.ImageID) == nil {
		http.Error(w, "Image not found", http.StatusNotFound)
		return
	}

	width := req.Width
	height := req.Height
	if width == 0 {
		width = h.config.DefaultViewWidth
	}
	if height == 0 {
		height = h.config.DefaultViewHeight
	}
	if width < 1 || height < 1 || width > maxViewDim || height > maxViewDim {
		http.Error(w, "Invalid viewport size", http.StatusBadRequest)
		return
	}

	sess, err := h.manager.Create(req.ImageID, width, height)
	if err != nil {
		if errors.Is(err, session.ErrLimit) {
			http.Error(w, "Too many live sessions", http.StatusTooManyRequests)
			return
		}
		h.logger.Error("Failed to create session", zap.String("image_id", req.ImageID), zap.Error(err))
		http.Error(w, "Failed to open image", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sess.Info())
}

func (h *Handlers) HandleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	sessionID := parts[0]

	switch {
	case len(parts) == 1:
		h.handleSessionWithID(w, r, sessionID)
	case len(parts) == 2:
		h.handleSessionAction(w, r, sessionID, parts[1])
	default:
		http.NotFound(w, r)
	}
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handlers) handleSessionWithID(w http.ResponseWriter, r *http.Request, sessionID string) {
	switch r.Method {
	case http.MethodGet:
		sess := h.manager.Get(sessionID)
		if sess == nil {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sess.Info())
	case http.MethodDelete:
		if !h.manager.Close(sessionID) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) handleSessionAction(w http.ResponseWriter, r *http.Request, sessionID, action string) {
	sess := h.manager.Get(sessionID)
	if sess == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	if action == "frame" {
		h.handleFrame(w, r, sess)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch action {
	case "origin":
		var req struct {
			X int `json:"x"`
			Y int `json:"y"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		sess.SetOrigin(req.X, req.Y)
	case "zoom":
		var req struct {
			Factor float64 `json:"factor"`
			FX     float64 `json:"fx"`
			FY     float64 `json:"fy"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.Factor <= 0 {
			http.Error(w, "Zoom factor must be positive", http.StatusBadRequest)
			return
		}
		sess.ZoomAt(req.Factor, req.FX, req.FY)
	case "size":
		var req struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.Width < 1 || req.Height < 1 || req.Width > maxViewDim || req.Height > maxViewDim {
			http.Error(w, "Invalid viewport size", http.StatusBadRequest)
			return
		}
		sess.Resize(req.Width, req.Height)
	case "suspend":
		var req struct {
			Suspended bool `json:"suspended"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		sess.SetSuspend(req.Suspended)
	case "invalidate":
		sess.Invalidate()
	default:
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess.Info())
}

func (h *Handlers) handleFrame(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	frame, err := sess.Render()
	if err != nil {
		h.logger.Error("Failed to render frame", zap.String("session_id", sess.ID), zap.Error(err))
		http.Error(w, "Failed to render frame", http.StatusInternalServerError)
		return
	}

	info := sess.Info()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Scene-Window", fmt.Sprintf("%d,%d,%d,%d",
		info.Window.X, info.Window.Y, info.Window.Width, info.Window.Height))
	w.Header().Set("X-Scene-Zoom", strconv.FormatFloat(info.Zoom, 'g', -1, 64))
	w.Header().Set("X-Cache-State", info.CacheState)

	if err := png.Encode(w, frame); err != nil {
		h.logger.Warn("Failed to encode frame", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

// Not for real production use due to potential spoofing
// but it's fine for a demo
func (h *Handlers) extractIP(r *http.Request) string {
	ip := r.Header.Get("X-Real-Ip")
	if ip != "" {
		return strings.Split(ip, ":")[0]
	}

	addr := r.RemoteAddr
	if addr != "" {
		return strings.Split(addr, ":")[0]
	}

	return "unknown"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
