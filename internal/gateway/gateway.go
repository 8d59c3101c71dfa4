package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/TemirB/musicnft/internal/config"
	"github.com/TemirB/musicnft/internal/domain"
	"github.com/TemirB/musicnft/internal/observability"
	"github.com/TemirB/musicnft/internal/pkg/breaker"
)

const acceptHeader = "application/json,*/*"

var (
	// errMiss marks an answer that is wrong for this CID only. The gateway
	// itself responded, so its breaker is not charged.
	errMiss         = errors.New("gateway does not serve this cid")
	errBodyTooLarge = fmt.Errorf("%w: response body exceeds limit", errMiss)
	errBadJSON      = fmt.Errorf("%w: declared json but body is not valid json", errMiss)
)

type gatewayEntry struct {
	base    string
	breaker *breaker.Breaker
}

// Fetcher resolves a CID against read-only gateways in priority order.
// The first 2xx answer wins; errors, timeouts and open breakers fall through.
type Fetcher struct {
	client   *resty.Client
	gateways []gatewayEntry
	timeout  time.Duration
	maxBody  int64
	logger   *zap.Logger
	metrics  observability.Metrics
}

func New(cfg config.Gateway, brk config.Breaker, logger *zap.Logger, metrics observability.Metrics) *Fetcher {
	if metrics == nil {
		metrics = observability.Noop{}
	}
	entries := make([]gatewayEntry, 0, len(cfg.URLs))
	for _, u := range cfg.URLs {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		entries = append(entries, gatewayEntry{base: u, breaker: breaker.New(brk)})
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		client:   resty.New(),
		gateways: entries,
		timeout:  timeout,
		maxBody:  cfg.MaxBody,
		logger:   logger,
		metrics:  metrics,
	}
}

// Fetch returns the first successful document and the gateway that served it.
func (f *Fetcher) Fetch(ctx context.Context, cid string) (*domain.Document, string, error) {
	var errs []error
	for _, gw := range f.gateways {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		if err := gw.breaker.Allow(); err != nil {
			f.logger.Debug("gateway skipped", zap.String("gateway", gw.base), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", gw.base, err))
			continue
		}

		start := time.Now()
		doc, err := f.fetchOne(ctx, gw.base, cid)
		durMs := float64(time.Since(start).Microseconds()) / 1000.0
		f.metrics.ObserveGateway(gw.base, err == nil, durMs)

		if errors.Is(err, errMiss) {
			gw.breaker.Success()
			f.logger.Debug("gateway miss",
				zap.String("gateway", gw.base),
				zap.String("cid", cid),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", gw.base, err))
			continue
		}
		if err != nil {
			gw.breaker.Failure()
			f.logger.Warn("gateway failed",
				zap.String("gateway", gw.base),
				zap.String("cid", cid),
				zap.Float64("gateway_ms", durMs),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", gw.base, err))
			continue
		}

		gw.breaker.Success()
		f.logger.Debug("gateway served",
			zap.String("gateway", gw.base),
			zap.String("cid", cid),
			zap.String("content_type", doc.ContentType),
			zap.Int("bytes", len(doc.Body)),
			zap.Float64("gateway_ms", durMs),
		)
		return doc, gw.base, nil
	}
	if len(errs) == 0 {
		return nil, "", fmt.Errorf("%w: no gateways configured", domain.ErrResolution)
	}
	return nil, "", fmt.Errorf("%w: %w", domain.ErrResolution, errors.Join(errs...))
}

func (f *Fetcher) fetchOne(ctx context.Context, base, cid string) (*domain.Document, error) {
	actx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.client.R().
		SetContext(actx).
		SetHeader("Accept", acceptHeader).
		SetDoNotParseResponse(true).
		Get(base + cid)
	if err != nil {
		return nil, err
	}
	raw := resp.RawBody()
	defer raw.Close()

	switch code := resp.StatusCode(); {
	case code >= 200 && code <= 299:
	case code >= 500 || code == http.StatusTooManyRequests:
		return nil, fmt.Errorf("unexpected status %s", resp.Status())
	default:
		// 404, 410 and other client errors
		return nil, fmt.Errorf("%w: status %s", errMiss, resp.Status())
	}

	body, err := f.readBody(raw)
	if err != nil {
		return nil, err
	}

	doc := &domain.Document{
		CID:         cid,
		ContentType: resp.Header().Get("Content-Type"),
		Body:        body,
	}
	if doc.IsJSON() && !json.Valid(body) {
		return nil, errBadJSON
	}
	return doc, nil
}

func (f *Fetcher) readBody(r io.Reader) ([]byte, error) {
	if f.maxBody <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, f.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.maxBody {
		return nil, errBodyTooLarge
	}
	return body, nil
}
