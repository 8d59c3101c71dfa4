package pinning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/TemirB/musicnft/internal/domain"
)

const (
	pinFilePath = "/pinning/pinFileToIPFS"
	pinJSONPath = "/pinning/pinJSONToIPFS"
)

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// Pinata pins through the Pinata v1 pinning API with a bearer JWT.
type Pinata struct {
	client *resty.Client
	logger *zap.Logger
}

func NewPinata(baseURL, jwt string, logger *zap.Logger) *Pinata {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(jwt).
		SetTimeout(5 * time.Minute)
	return &Pinata{client: client, logger: logger}
}

func (p *Pinata) PinFile(ctx context.Context, f File) (string, error) {
	var out pinResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetMultipartField("file", f.Name, f.ContentType, f.Body).
		SetResult(&out).
		Post(pinFilePath)
	if err := checkResponse(resp, err, out.IpfsHash); err != nil {
		p.logger.Error("pin file failed", zap.String("file", f.Name), zap.Error(err))
		return "", err
	}
	p.logger.Info("file pinned",
		zap.String("file", f.Name),
		zap.String("cid", out.IpfsHash),
		zap.Int64("pin_size", out.PinSize),
	)
	return out.IpfsHash, nil
}

func (p *Pinata) PinJSON(ctx context.Context, name string, doc any) (string, error) {
	var out pinResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(doc).
		SetResult(&out).
		Post(pinJSONPath)
	if err := checkResponse(resp, err, out.IpfsHash); err != nil {
		p.logger.Error("pin json failed", zap.String("name", name), zap.Error(err))
		return "", err
	}
	p.logger.Info("json pinned", zap.String("name", name), zap.String("cid", out.IpfsHash))
	return out.IpfsHash, nil
}

func checkResponse(resp *resty.Response, err error, cid string) error {
	if err != nil {
		return fmt.Errorf("%w: pinata: %v", domain.ErrUpstream, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: pinata: %s: %s", domain.ErrUpstream, resp.Status(), strings.TrimSpace(string(resp.Body())))
	}
	if cid == "" {
		return fmt.Errorf("%w: pinata: empty IpfsHash in response", domain.ErrUpstream)
	}
	return nil
}
