package metaclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/TemirB/musicnft/internal/application/service"
	"github.com/TemirB/musicnft/internal/domain"
)

// Client talks to the metadata proxy.
type Client struct {
	baseURL string
	client  *resty.Client
	logger  *zap.Logger
}

func New(backendURL string, logger *zap.Logger) *Client {
	base := strings.TrimRight(backendURL, "/")
	return &Client{
		baseURL: base,
		client: resty.New().
			SetBaseURL(base).
			SetTimeout(5 * time.Minute),
		logger: logger,
	}
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e *apiError) String() string {
	if e.Message == "" {
		return e.Error
	}
	return e.Error + ": " + e.Message
}

type uploadResponse struct {
	Success bool `json:"success"`
	service.UploadResult
}

// Upload sends the audio file and its descriptive fields to POST /upload.
func (c *Client) Upload(ctx context.Context, req service.UploadRequest) (service.UploadResult, error) {
	if req.File == nil || req.File.Body == nil {
		return service.UploadResult{}, fmt.Errorf("%w: no file", domain.ErrValidation)
	}

	var (
		out     uploadResponse
		failure apiError
	)
	resp, err := c.client.R().
		SetContext(ctx).
		SetMultipartField("file", req.File.Name, req.File.ContentType, req.File.Body).
		SetMultipartFormData(map[string]string{
			"songName":    req.SongName,
			"artist":      req.Artist,
			"description": req.Description,
		}).
		SetResult(&out).
		SetError(&failure).
		Post("/upload")
	if err := check("upload", resp, err, &failure); err != nil {
		return service.UploadResult{}, err
	}
	if !out.Success || out.URI == "" {
		return service.UploadResult{}, fmt.Errorf("%w: upload: unexpected response", domain.ErrUpstream)
	}

	c.logger.Info("metadata uploaded", zap.String("uri", out.URI), zap.String("audio_cid", out.AudioCID))
	return out.UploadResult, nil
}

// Resolve fetches token metadata through GET /proxy/{cid}. A tokenURI with
// the ipfs:// scheme is accepted as well.
func (c *Client) Resolve(ctx context.Context, cid string) (*domain.Metadata, error) {
	cid = domain.CIDFromURI(cid)
	if cid == "" {
		return nil, fmt.Errorf("%w: empty cid", domain.ErrValidation)
	}

	var (
		out     domain.Metadata
		failure apiError
	)
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		ForceContentType("application/json").
		SetResult(&out).
		SetError(&failure).
		Get("/proxy/" + url.PathEscape(cid))
	if err := check("resolve "+cid, resp, err, &failure); err != nil {
		return nil, err
	}
	return &out, nil
}

// AudioURL maps an ipfs:// audio reference onto the proxy.
func (c *Client) AudioURL(uri string) string {
	cid := domain.CIDFromURI(uri)
	if cid == "" {
		return ""
	}
	return c.baseURL + "/proxy/" + url.PathEscape(cid)
}

func check(op string, resp *resty.Response, err error, failure *apiError) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrUpstream, op, err)
	}
	if resp.IsError() {
		msg := failure.String()
		if msg == "" {
			msg = strings.TrimSpace(string(resp.Body()))
		}
		if resp.StatusCode() == 400 {
			return fmt.Errorf("%w: %s: %s", domain.ErrValidation, op, msg)
		}
		return fmt.Errorf("%w: %s: %s: %s", domain.ErrUpstream, op, resp.Status(), msg)
	}
	return nil
}
