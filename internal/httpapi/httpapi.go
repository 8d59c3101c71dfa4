package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"github.com/TemirB/musicnft/internal/application/service"
	"github.com/TemirB/musicnft/internal/domain"
	"github.com/TemirB/musicnft/internal/observability"
	"github.com/TemirB/musicnft/internal/pinning"
)

//go:generate mockgen -source internal/httpapi/httpapi.go -destination=internal/httpapi/httpapi_mock_test.go -package=httpapi

const multipartMemory = 32 << 20

type ProxyService interface {
	UploadWithStats(ctx context.Context, req service.UploadRequest) (service.UploadResult, service.UploadStats, error)
	ResolveWithStats(ctx context.Context, cid string) (*domain.Document, service.LookupStats, error)
}

type ListingSource interface {
	ActiveListings(ctx context.Context) ([]domain.Listing, error)
}

// ContentSource serves locally pinned objects under /ipfs/{cid}.
type ContentSource interface {
	Get(cid string) ([]byte, string, bool)
}

type Options struct {
	MaxUploadBytes int64
	Listings       ListingSource
	Content        ContentSource
	MetricsHandler http.Handler
}

type Server struct {
	service ProxyService
	opts    Options
	router  chi.Router
	logger  *zap.Logger
	metrics observability.Metrics
	now     func() time.Time
}

func New(svc ProxyService, logger *zap.Logger, metrics observability.Metrics, opts Options) *Server {
	if metrics == nil {
		metrics = observability.Noop{}
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	s := &Server{
		service: svc,
		opts:    opts,
		router:  chi.NewRouter(),
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Server-Timing", "X-Source", "X-Gateway"},
		MaxAge:         300,
	}))
	s.router.Use(ServerTimingApp(s.metrics))

	s.router.Post("/upload", s.upload)
	s.router.Get("/proxy/{cid}", s.proxy)
	s.router.Get("/health", s.health)
	if s.opts.Listings != nil {
		s.router.Get("/listings", s.listings)
	}
	if s.opts.Content != nil {
		s.router.Get("/ipfs/{cid}", s.ipfs)
	}
	if s.opts.MetricsHandler != nil {
		s.router.Handle("/metrics", s.opts.MetricsHandler)
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type uploadResponse struct {
	Success bool `json:"success"`
	service.UploadResult
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error:   "File too large",
				Message: "limit is " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes",
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No file uploaded", Message: err.Error()})
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.logger.Warn("Failed to remove temp upload files", zap.Error(err))
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No file uploaded"})
		return
	}
	defer file.Close()

	req := service.UploadRequest{
		File: &pinning.File{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Body:        file,
		},
		SongName:    r.FormValue("songName"),
		Artist:      r.FormValue("artist"),
		Description: r.FormValue("description"),
	}

	res, st, err := s.service.UploadWithStats(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No file uploaded", Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Upload failed", Message: err.Error()})
		return
	}

	observability.AppendServerTiming(w, "pin_audio", st.AudioPinMs, "")
	observability.AppendServerTiming(w, "pin_metadata", st.MetadataPinMs, "")

	writeJSON(w, http.StatusOK, uploadResponse{Success: true, UploadResult: res})
}

func (s *Server) proxy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "cid")
	if _, err := cid.Decode(id); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid CID", Message: err.Error()})
		return
	}

	doc, st, err := s.service.ResolveWithStats(r.Context(), id)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, domain.ErrResolution) {
			msg = domain.ErrResolution.Error()
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Could not fetch from IPFS", Message: msg})
		return
	}

	observability.AppendServerTiming(w, "cache", st.CacheMs, "")
	observability.AppendServerTiming(w, "store", st.StoreMs, "")
	observability.AppendServerTiming(w, "gateway", st.GatewayMs, st.Gateway)
	observability.AppendServerTiming(w, "source", 0, string(st.Source))
	w.Header().Set("X-Source", string(st.Source))
	if st.Gateway != "" {
		w.Header().Set("X-Gateway", st.Gateway)
	}

	ct := doc.ContentType
	switch {
	case doc.IsJSON():
		ct = "application/json; charset=utf-8"
	case ct == "":
		ct = "application/octet-stream"
	}
	writeRaw(w, ct, doc.Body)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) listings(w http.ResponseWriter, r *http.Request) {
	items, err := s.opts.Listings.ActiveListings(r.Context())
	if err != nil {
		s.logger.Error("Error while reading listings", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Could not read listings", Message: err.Error()})
		return
	}
	if items == nil {
		items = []domain.Listing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": items})
}

func (s *Server) ipfs(w http.ResponseWriter, r *http.Request) {
	body, ct, ok := s.opts.Content.Get(chi.URLParam(r, "cid"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not pinned"})
		return
	}
	writeRaw(w, ct, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeRaw(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	s.logger.Info("proxy listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Handler() http.Handler { return s.router }
