package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/TemirB/musicnft/internal/domain"
	"github.com/TemirB/musicnft/internal/observability"
	"github.com/TemirB/musicnft/internal/pinning"
)

//go:generate mockgen -source internal/application/service/service.go -destination=internal/application/service/service_mock_test.go -package=service

const (
	DefaultSongName    = "Untitled"
	DefaultArtist      = "Unknown"
	DefaultDescription = ""
)

type Cache interface {
	Get(cid string) ([]byte, bool)
	Set(cid string, body []byte)
}

// Store is the optional persistent document layer behind the cache.
type Store interface {
	SaveDocument(ctx context.Context, cid string, body []byte) error
	GetDocument(ctx context.Context, cid string) ([]byte, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, cid string) (*domain.Document, string, error)
}

type Pinner interface {
	PinFile(ctx context.Context, f pinning.File) (string, error)
	PinJSON(ctx context.Context, name string, doc any) (string, error)
}

// pinnedReader is implemented by pinners that keep the exact bytes they
// pinned. Remote pinners do not, and their documents reach the store only
// after a gateway serves them.
type pinnedReader interface {
	Get(cid string) ([]byte, string, bool)
}

type UploadRequest struct {
	File        *pinning.File
	SongName    string
	Artist      string
	Description string
}

type UploadResult struct {
	URI         string `json:"uri"`
	AudioCID    string `json:"audioCID"`
	MetadataCID string `json:"metadataCID"`
}

type Service struct {
	cache   Cache
	store   Store
	fetcher Fetcher
	pinner  Pinner
	logger  *zap.Logger
	metrics observability.Metrics
	group   singleflight.Group
}

// NewService wires the proxy. store may be nil.
func NewService(cache Cache, fetcher Fetcher, pinner Pinner, store Store, logger *zap.Logger, metrics observability.Metrics) *Service {
	if metrics == nil {
		metrics = observability.Noop{}
	}
	return &Service{
		cache:   cache,
		store:   store,
		fetcher: fetcher,
		pinner:  pinner,
		logger:  logger,
		metrics: metrics,
	}
}

func (s *Service) UploadWithStats(ctx context.Context, req UploadRequest) (UploadResult, UploadStats, error) {
	var st UploadStats
	if req.File == nil || req.File.Body == nil {
		return UploadResult{}, st, fmt.Errorf("%w: no file uploaded", domain.ErrValidation)
	}
	start := time.Now()

	t0 := time.Now()
	audioCID, err := s.pinner.PinFile(ctx, *req.File)
	st.AudioPinMs = convertToMs(t0)
	if err != nil {
		s.metrics.ObserveUpload(false, convertToMs(start))
		s.logger.Error("Error while pinning audio", zap.String("file", req.File.Name), zap.Error(err))
		return UploadResult{}, st, asUpstream(err)
	}

	meta := BuildMetadata(req, audioCID)

	t1 := time.Now()
	metaCID, err := s.pinner.PinJSON(ctx, meta.Name, meta)
	st.MetadataPinMs = convertToMs(t1)
	if err != nil {
		s.metrics.ObserveUpload(false, convertToMs(start))
		s.logger.Error("Error while pinning metadata",
			zap.String("audio_cid", audioCID),
			zap.Error(err),
		)
		return UploadResult{}, st, asUpstream(err)
	}

	if pr, ok := s.pinner.(pinnedReader); ok && s.store != nil {
		if body, _, ok := pr.Get(metaCID); ok {
			if err := s.store.SaveDocument(ctx, metaCID, body); err != nil {
				s.logger.Warn("Document store write failed", zap.String("cid", metaCID), zap.Error(err))
			}
		}
	}

	s.metrics.ObserveUpload(true, convertToMs(start))
	s.logger.Info("Upload pinned",
		zap.String("audio_cid", audioCID),
		zap.String("metadata_cid", metaCID),
		zap.Float64("audio_pin_ms", st.AudioPinMs),
		zap.Float64("metadata_pin_ms", st.MetadataPinMs),
	)

	return UploadResult{
		URI:         domain.IPFSURI(metaCID),
		AudioCID:    audioCID,
		MetadataCID: metaCID,
	}, st, nil
}

func (s *Service) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	res, _, err := s.UploadWithStats(ctx, req)
	return res, err
}

// BuildMetadata fills placeholder values for empty fields.
func BuildMetadata(req UploadRequest, audioCID string) domain.Metadata {
	name := req.SongName
	if name == "" {
		name = DefaultSongName
	}
	artist := req.Artist
	if artist == "" {
		artist = DefaultArtist
	}
	return domain.Metadata{
		Name:        name,
		Description: req.Description,
		Properties: domain.Properties{
			Artist: artist,
			Audio:  domain.IPFSURI(audioCID),
		},
	}
}

func (s *Service) Resolve(ctx context.Context, cid string) (*domain.Document, error) {
	doc, _, err := s.ResolveWithStats(ctx, cid)
	return doc, err
}

type resolved struct {
	doc *domain.Document
	st  LookupStats
}

func (s *Service) ResolveWithStats(ctx context.Context, cid string) (*domain.Document, LookupStats, error) {
	tCacheStart := time.Now()
	if body, ok := s.cache.Get(cid); ok {
		st := LookupStats{Source: SourceCache, CacheMs: convertToMs(tCacheStart)}
		s.metrics.IncCacheHit()
		s.metrics.ObserveResolve(string(st.Source), st.CacheMs)
		s.logger.Debug("Document fetched from cache",
			zap.String("cid", cid),
			zap.Float64("cache_ms", st.CacheMs),
		)
		return jsonDocument(cid, body), st, nil
	}
	s.metrics.IncCacheMiss()
	cacheMs := convertToMs(tCacheStart)

	// Concurrent misses for one CID share a single lookup. The lookup is
	// detached from the first caller's cancellation; gateway timeouts bound it.
	v, err, shared := s.group.Do(cid, func() (any, error) {
		return s.resolveMiss(context.WithoutCancel(ctx), cid)
	})
	if err != nil {
		s.logger.Error("Can't resolve document",
			zap.String("cid", cid),
			zap.Bool("shared", shared),
			zap.Error(err),
		)
		return nil, LookupStats{CacheMs: cacheMs}, err
	}

	r := v.(resolved)
	st := r.st
	st.CacheMs = cacheMs
	return r.doc, st, nil
}

func (s *Service) resolveMiss(ctx context.Context, cid string) (resolved, error) {
	// A flight that started after another one finished may find the CID cached.
	if body, ok := s.cache.Get(cid); ok {
		return resolved{doc: jsonDocument(cid, body), st: LookupStats{Source: SourceCache}}, nil
	}

	var st LookupStats
	if s.store != nil {
		tStore := time.Now()
		body, err := s.store.GetDocument(ctx, cid)
		st.StoreMs = convertToMs(tStore)
		switch {
		case err == nil:
			st.Source = SourceStore
			s.cache.Set(cid, body)
			s.metrics.ObserveResolve(string(st.Source), st.StoreMs)
			s.logger.Info("Document fetched from store",
				zap.String("cid", cid),
				zap.Float64("store_ms", st.StoreMs),
			)
			return resolved{doc: jsonDocument(cid, body), st: st}, nil
		case errors.Is(err, domain.ErrNotFound):
		default:
			s.logger.Warn("Document store read failed", zap.String("cid", cid), zap.Error(err))
		}
	}

	tGateway := time.Now()
	doc, gw, err := s.fetcher.Fetch(ctx, cid)
	st.GatewayMs = convertToMs(tGateway)
	if err != nil {
		return resolved{}, err
	}
	st.Source = SourceGateway
	st.Gateway = gw

	if doc.IsJSON() {
		s.cache.Set(cid, doc.Body)
		if s.store != nil {
			if err := s.store.SaveDocument(ctx, cid, doc.Body); err != nil {
				s.logger.Warn("Document store write failed", zap.String("cid", cid), zap.Error(err))
			}
		}
	}

	s.metrics.ObserveResolve(string(st.Source), st.GatewayMs)
	s.logger.Info("Document fetched from gateway",
		zap.String("cid", cid),
		zap.String("gateway", gw),
		zap.String("content_type", doc.ContentType),
		zap.Float64("gateway_ms", st.GatewayMs),
	)
	return resolved{doc: doc, st: st}, nil
}

func jsonDocument(cid string, body []byte) *domain.Document {
	return &domain.Document{CID: cid, ContentType: "application/json; charset=utf-8", Body: body}
}

func asUpstream(err error) error {
	if errors.Is(err, domain.ErrUpstream) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
}
