// Package server exposes the homepass enrichment over HTTP: an upload form,
// a health probe, and a multipart endpoint returning the exported artifact.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/fiberplan/internal/config"
	"github.com/sells-group/fiberplan/internal/export"
	"github.com/sells-group/fiberplan/internal/kml"
	"github.com/sells-group/fiberplan/internal/popup"
)

// FailureMessage accompanies every error response.
const FailureMessage = "Gagal memproses. Pastikan file KML valid."

// FormField is the multipart field carrying the design document.
const FormField = "file"

// RecordCountHeader reports the number of records in a successful response.
const RecordCountHeader = "X-Record-Count"

// Server handles design uploads.
type Server struct {
	cfg     config.ServerConfig
	opts    popup.Options
	limiter *rate.Limiter
	router  chi.Router
}

// DefaultMaxUploadMB applies when the configured upload limit is not positive.
const DefaultMaxUploadMB = 64

// New builds a Server. A non-positive RatePerSecond disables rate limiting.
func New(cfg config.ServerConfig, opts popup.Options) *Server {
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = DefaultMaxUploadMB
	}
	s := &Server{cfg: cfg, opts: opts}
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server: shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("server: starting", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition", RecordCountHeader},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/health", handleHealth)
	r.With(s.rateLimit).Post("/process", s.handleProcess)
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, eris.New("too many requests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"}) //nolint:errcheck
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadMB<<20)

	file, header, err := r.FormFile(FormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				eris.Errorf("upload exceeds %d MB", s.cfg.MaxUploadMB))
			return
		}
		writeError(w, http.StatusBadRequest, eris.Wrapf(err, "read form field %q", FormField))
		return
	}
	defer file.Close() //nolint:errcheck

	name := filepath.Base(header.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".kml" && ext != ".kmz" {
		writeError(w, http.StatusBadRequest, eris.Errorf("unsupported file type %q", ext))
		return
	}

	formatName := r.URL.Query().Get("format")
	if formatName == "" {
		formatName = r.FormValue("format")
	}
	format, err := export.ParseFormat(formatName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	dir, err := s.requestDir()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	path := filepath.Join(dir, "design"+ext)
	if err := saveUpload(path, file); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	ctx := r.Context()
	if s.cfg.TimeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSecs)*time.Second)
		defer cancel()
	}

	res, err := popup.ProcessDesign(ctx, path, s.opts)
	if err != nil {
		zap.L().Warn("server: process failed",
			zap.String("upload", name),
			zap.Error(err),
		)
		writeError(w, statusFor(err), err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, res.Records); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.FileName(name)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set(RecordCountHeader, strconv.Itoa(len(res.Records)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		zap.L().Warn("server: write response", zap.Error(err))
	}
}

// requestDir creates a request-unique directory under the configured temp
// root (the OS temp dir when unset).
func (s *Server) requestDir() (string, error) {
	root := s.cfg.TempDir
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "fiberplan-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", eris.Wrap(err, "server: create request dir")
	}
	return dir, nil
}

func saveUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "server: create upload file")
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close() //nolint:errcheck
		return eris.Wrap(err, "server: save upload")
	}
	if err := dst.Close(); err != nil {
		return eris.Wrap(err, "server: close upload file")
	}
	return nil
}

// statusFor maps processing errors to HTTP status codes.
func statusFor(err error) int {
	var formatErr *kml.FormatError
	var missing *popup.MissingLayersError
	var projErr *popup.ProjectionError
	switch {
	case errors.As(err, &formatErr), errors.As(err, &missing), errors.As(err, &projErr):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{ //nolint:errcheck
		Error:   err.Error(),
		Message: FailureMessage,
	})
}
