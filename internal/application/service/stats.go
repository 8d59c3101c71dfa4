package service

import "time"

type LookupSource string

const (
	SourceCache   LookupSource = "cache"
	SourceStore   LookupSource = "store"
	SourceGateway LookupSource = "gateway"
)

type LookupStats struct {
	Source    LookupSource
	Gateway   string
	CacheMs   float64
	StoreMs   float64
	GatewayMs float64
}

type UploadStats struct {
	AudioPinMs    float64
	MetadataPinMs float64
}

func convertToMs(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
