package config

import (
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	PinBackendPinata = "pinata"
	PinBackendMemory = "memory"
)

var DefaultGateways = []string{
	"https://nftstorage.link/ipfs/",
	"https://ipfs.io/ipfs/",
	"https://gateway.pinata.cloud/ipfs/",
	"https://dweb.link/ipfs/",
	"https://ipfs.infura.io/ipfs/",
}

type Tables struct {
	Schema    string
	Documents string
	Listings  string
}

type Kafka struct {
	Brokers     []string
	Topic       string
	Group       string
	Workers     int
	Partitions  int
	Replication int
}

func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

type Postgres struct {
	Host     string
	Port     string
	DB       string
	User     string
	Password string
	SSLMode  string
}

func (p Postgres) Enabled() bool { return p.Host != "" }

type Breaker struct {
	Threshold   uint32
	OpenTimeout time.Duration
	MaxHalfOpen uint32
}

type Retry struct {
	Attempts     int
	Base         time.Duration
	Max          time.Duration
	JitterFactor float64
}

type Pinning struct {
	Backend string
	JWT     string
	URL     string
}

type Gateway struct {
	URLs    []string
	Timeout time.Duration
	// MaxBody caps buffered non-JSON payloads.
	MaxBody int64
}

type Proxy struct {
	HTTPAddr       string
	CacheCap       int
	CacheTTL       time.Duration
	UploadMaxBytes int64
	LogLevel       string

	Pinning Pinning
	Gateway Gateway
	Pg      Postgres
	Tables  Tables
	Kafka   Kafka
	Breaker Breaker
	Retry   Retry
}

type Chain struct {
	RPCURL      string
	ChainID     int64
	Account     string
	PrivateKey  string
	ReceiptPoll time.Duration
}

type Contracts struct {
	NFT      string
	Market   string
	Token    string
	Decimals int32
}

type Probe struct {
	Cap         int
	MaxFailures int
}

type Client struct {
	BackendURL string
	LogLevel   string

	Chain     Chain
	Contracts Contracts
	Probe     Probe
}

type Indexer struct {
	Client
	Interval time.Duration
	Kafka    Kafka
}

// LoadProxy fatals on error, same as the other loaders. Use loadProxy in tests.
func LoadProxy() Proxy {
	cfg, err := loadProxy()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	return cfg
}

func LoadClient() Client {
	cfg, err := loadClient()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	return cfg
}

func LoadIndexer() Indexer {
	cfg, err := loadIndexer()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	return cfg
}

func loadProxy() (Proxy, error) {
	_ = godotenv.Load("env/.env")

	httpAddr := envDefault("HTTP_ADDR", ":8081")
	backend := strings.ToLower(envDefault("PIN_BACKEND", PinBackendPinata))

	gateways := splitCSV(strings.TrimSpace(os.Getenv("IPFS_GATEWAYS")))
	if len(gateways) == 0 {
		gateways = DefaultGateways
		if backend == PinBackendMemory {
			gateways = []string{selfGateway(httpAddr)}
		}
	}

	cfg := Proxy{
		HTTPAddr:       httpAddr,
		CacheCap:       envInt("CACHE_CAP", 1000),
		CacheTTL:       envDurationMS("CACHE_TTL", 10*time.Minute),
		UploadMaxBytes: int64(envInt("UPLOAD_MAX_BYTES", 50<<20)),
		LogLevel:       envDefault("LOG_LEVEL", "info"),

		Pinning: Pinning{
			Backend: backend,
			JWT:     strings.TrimSpace(os.Getenv("PINATA_JWT")),
			URL:     envDefault("PINATA_URL", "https://api.pinata.cloud"),
		},

		Gateway: Gateway{
			URLs:    gateways,
			Timeout: envDurationMS("GATEWAY_TIMEOUT", 10*time.Second),
			MaxBody: int64(envInt("GATEWAY_MAX_BODY", 50<<20)),
		},

		Pg: Postgres{
			Host:     strings.TrimSpace(os.Getenv("PG_HOST")),
			Port:     strings.TrimSpace(envDefault("PG_PORT", "5432")),
			DB:       strings.TrimSpace(os.Getenv("PG_DB")),
			User:     strings.TrimSpace(os.Getenv("PG_USER")),
			Password: strings.TrimSpace(os.Getenv("PG_PASSWORD")),
			SSLMode:  strings.TrimSpace(envDefault("PG_SSLMODE", "disable")),
		},

		Tables: Tables{
			Schema:    envDefault("DB_SCHEMA", "public"),
			Documents: envDefault("TBL_DOCUMENTS", "documents"),
			Listings:  envDefault("TBL_LISTINGS", "listings"),
		},

		Kafka: loadKafka(),

		Breaker: Breaker{
			Threshold:   envUint32("BREAKER_THRESHOLD", 5),
			OpenTimeout: envDurationMS("BREAKER_OPENTIMEOUT", 10*time.Second),
			MaxHalfOpen: envUint32("BREAKER_MAXHALFOPEN", 3),
		},

		Retry: Retry{
			Attempts:     envInt("RETRY_ATTEMPTS", 5),
			Base:         envDurationMS("RETRY_BASE", 100*time.Millisecond),
			Max:          envDurationMS("RETRY_MAX", 5*time.Second),
			JitterFactor: envFloat64("RETRY_JITTERFACTOR", 0.3),
		},
	}

	if err := cfg.validate(); err != nil {
		return Proxy{}, err
	}
	return cfg, nil
}

func loadKafka() Kafka {
	return Kafka{
		Brokers:     splitCSV(strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))),
		Topic:       envDefault("KAFKA_TOPIC", "marketplace.listings"),
		Group:       envDefault("KAFKA_GROUP", "musicnft-proxy"),
		Workers:     envInt("KAFKA_WORKERS", 4),
		Partitions:  envInt("KAFKA_PARTITIONS", 1),
		Replication: envInt("KAFKA_REPLICATION", 1),
	}
}

func loadClient() (Client, error) {
	_ = godotenv.Load("env/.env")

	cfg := Client{
		BackendURL: strings.TrimRight(envDefault("BACKEND_URL", "http://localhost:8081"), "/"),
		LogLevel:   envDefault("LOG_LEVEL", "info"),

		Chain: Chain{
			RPCURL:      envDefault("RPC_URL", "http://127.0.0.1:8545"),
			ChainID:     int64(envInt("CHAIN_ID", 31337)),
			Account:     strings.TrimSpace(os.Getenv("ACCOUNT")),
			PrivateKey:  strings.TrimPrefix(strings.TrimSpace(os.Getenv("PRIVATE_KEY")), "0x"),
			ReceiptPoll: envDurationMS("RECEIPT_POLL", time.Second),
		},

		Contracts: Contracts{
			NFT:      strings.TrimSpace(os.Getenv("NFT_ADDRESS")),
			Market:   strings.TrimSpace(os.Getenv("MARKET_ADDRESS")),
			Token:    strings.TrimSpace(os.Getenv("TOKEN_ADDRESS")),
			Decimals: int32(envInt("TOKEN_DECIMALS", 2)),
		},

		Probe: Probe{
			Cap:         envInt("PROBE_CAP", 100),
			MaxFailures: envInt("PROBE_MAX_FAILURES", 3),
		},
	}

	if err := cfg.validate(); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

func loadIndexer() (Indexer, error) {
	client, err := loadClient()
	if err != nil {
		return Indexer{}, err
	}
	cfg := Indexer{
		Client:   client,
		Interval: envDurationMS("INDEX_INTERVAL", 15*time.Second),
		Kafka:    loadKafka(),
	}
	if !cfg.Kafka.Enabled() {
		return Indexer{}, &missingEnvError{Keys: []string{"KAFKA_BROKERS"}}
	}
	return cfg, nil
}

func (c Proxy) validate() error {
	var missing []string
	req := map[string]string{}
	if c.Pinning.Backend == PinBackendPinata {
		req["PINATA_JWT"] = c.Pinning.JWT
	}
	if c.Pg.Enabled() {
		req["PG_DB"] = c.Pg.DB
		req["PG_USER"] = c.Pg.User
		req["PG_PASSWORD"] = c.Pg.Password
	}
	if c.Kafka.Enabled() {
		req["KAFKA_TOPIC"] = c.Kafka.Topic
		req["KAFKA_GROUP"] = c.Kafka.Group
	}
	for k, v := range req {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &missingEnvError{Keys: missing}
	}

	switch c.Pinning.Backend {
	case PinBackendPinata, PinBackendMemory:
	default:
		return &invalidEnvError{Key: "PIN_BACKEND", Value: c.Pinning.Backend}
	}
	if c.CacheCap <= 0 {
		log.Printf("CACHE_CAP is %d, adjusting to 1", c.CacheCap)
	}
	if c.Retry.Max < c.Retry.Base {
		log.Printf("RETRY_MAX (%v) < RETRY_BASE (%v), adjusting max to base", c.Retry.Max, c.Retry.Base)
	}
	return nil
}

func (c Client) validate() error {
	var missing []string
	req := map[string]string{
		"NFT_ADDRESS":    c.Contracts.NFT,
		"MARKET_ADDRESS": c.Contracts.Market,
		"TOKEN_ADDRESS":  c.Contracts.Token,
	}
	if c.Chain.PrivateKey == "" {
		req["ACCOUNT"] = c.Chain.Account
	}
	for k, v := range req {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &missingEnvError{Keys: missing}
	}
	if c.Probe.Cap <= 0 {
		return &invalidEnvError{Key: "PROBE_CAP", Value: strconv.Itoa(c.Probe.Cap)}
	}
	return nil
}

type missingEnvError struct{ Keys []string }

func (e *missingEnvError) Error() string {
	return "missing required envs: " + strings.Join(e.Keys, ", ")
}

type invalidEnvError struct{ Key, Value string }

func (e *invalidEnvError) Error() string {
	return "invalid env " + e.Key + "=" + strconv.Quote(e.Value)
}

// DSN builds a proper Postgres URL, safely escaping user/pass and query.
func (c Proxy) DSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Pg.User, c.Pg.Password),
		Host:   net.JoinHostPort(c.Pg.Host, c.Pg.Port),
		Path:   "/" + c.Pg.DB,
	}
	q := url.Values{}
	if c.Pg.SSLMode != "" {
		q.Set("sslmode", c.Pg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// selfGateway points the proxy at its own /ipfs/ route for the memory backend.
func selfGateway(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://127.0.0.1:8081/ipfs/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/ipfs/"
}

func envDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d: %v", k, v, def, err)
		return def
	}
	return n
}

func envUint32(k string, def uint32) uint32 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	u, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d: %v", k, v, def, err)
		return def
	}
	return uint32(u)
}

func envFloat64(k string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using default %.3f: %v", k, v, def, err)
		return def
	}
	return f
}

// envDurationMS supports either plain integer milliseconds ("1500") or
// Go duration strings ("1.5s", "250ms", "2m").
func envDurationMS(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if strings.IndexFunc(v, func(r rune) bool { return r < '0' || r > '9' }) != -1 {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Printf("invalid %s=%q, using default %v: %v", k, v, def, err)
			return def
		}
		return d
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %v: %v", k, v, def, err)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
