package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Cache backends.
const (
	CacheDriverPostgres = "postgres"
	CacheDriverSQLite   = "sqlite"
	CacheDriverRedis    = "redis"
	CacheDriverMemory   = "memory"
)

// Ledger and blob store backends.
const (
	LedgerDriverFabric = "fabric"
	LedgerDriverMemory = "memory"
	BlobDriverIPFS     = "ipfs"
	BlobDriverMemory   = "memory"
)

const devSigningKey = "dev-secret-key-change-in-production"

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	Environment    string
	LogLevel       string
	JWTSigningKey  string
	TokenIssuer    string
	TokenAudience  string
	TokenTTL       time.Duration
	MaxUploadBytes int64
	TrustedProxies string
}

// Cache configures the advisory certificate cache.
type Cache struct {
	Driver       string
	DatabaseURL  string
	SQLitePath   string
	RedisURL     string
	TTL          time.Duration
	Require      bool
	Timeout      time.Duration
	ResyncEvery  time.Duration
	ResyncLimit  int
	BreakerTrips int
}

// Fabric configures the Fabric Gateway connection.
type Fabric struct {
	PeerEndpoint string
	GatewayPeer  string
	TLSCertPath  string
	CertPath     string
	KeyPath      string
	MSPID        string
	Channel      string
	Chaincode    string
}

// Ledger configures the authoritative ledger client.
type Ledger struct {
	Driver  string
	Timeout time.Duration
	Fabric  Fabric
}

// Blob configures the payload store.
type Blob struct {
	Driver  string
	APIURL  string
	MFSDir  string
	Timeout time.Duration
}

// Kafka configures lifecycle event publishing. No brokers disables it.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Config is the full service configuration.
type Config struct {
	Server Server
	Cache  Cache
	Ledger Ledger
	Blob   Blob
	Kafka  Kafka
}

// FromEnv builds the config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	e := &envReader{}
	cfg := Config{
		Server: Server{
			Addr:           e.str("CERTLEDGER_ADDR", ":8080"),
			Environment:    e.str("ENVIRONMENT", "development"),
			LogLevel:       e.str("LOG_LEVEL", "info"),
			JWTSigningKey:  e.str("JWT_SIGNING_KEY", ""),
			TokenIssuer:    e.str("TOKEN_ISSUER", "certledger"),
			TokenAudience:  e.str("TOKEN_AUDIENCE", "certledger-api"),
			TokenTTL:       e.duration("TOKEN_TTL", time.Hour),
			MaxUploadBytes: e.int64("MAX_UPLOAD_BYTES", 10<<20),
			TrustedProxies: e.str("TRUSTED_PROXIES", ""),
		},
		Cache: Cache{
			Driver:       strings.ToLower(e.str("CACHE_DRIVER", CacheDriverMemory)),
			DatabaseURL:  e.str("DATABASE_URL", ""),
			SQLitePath:   e.str("SQLITE_PATH", "certledger.db"),
			RedisURL:     e.str("REDIS_URL", ""),
			TTL:          e.duration("CACHE_TTL", 0),
			Require:      e.boolean("REQUIRE_CACHE", false),
			Timeout:      e.duration("CACHE_TIMEOUT", 2*time.Second),
			ResyncEvery:  e.duration("RESYNC_INTERVAL", 0),
			ResyncLimit:  int(e.int64("RESYNC_CONCURRENCY", 8)),
			BreakerTrips: int(e.int64("CACHE_BREAKER_THRESHOLD", 5)),
		},
		Ledger: Ledger{
			Driver:  strings.ToLower(e.str("LEDGER_DRIVER", LedgerDriverMemory)),
			Timeout: e.duration("LEDGER_TIMEOUT", 10*time.Second),
			Fabric: Fabric{
				PeerEndpoint: e.str("FABRIC_PEER_ENDPOINT", "localhost:7051"),
				GatewayPeer:  e.str("FABRIC_GATEWAY_PEER", "peer0.org1.example.com"),
				TLSCertPath:  e.str("FABRIC_TLS_CERT_PATH", ""),
				CertPath:     e.str("FABRIC_CERT_PATH", ""),
				KeyPath:      e.str("FABRIC_KEY_PATH", ""),
				MSPID:        e.str("FABRIC_MSP_ID", "Org1MSP"),
				Channel:      e.str("FABRIC_CHANNEL", "mychannel"),
				Chaincode:    e.str("FABRIC_CHAINCODE", "basic"),
			},
		},
		Blob: Blob{
			Driver:  strings.ToLower(e.str("BLOB_DRIVER", BlobDriverMemory)),
			APIURL:  e.str("IPFS_API_URL", "localhost:5001"),
			MFSDir:  e.str("IPFS_MFS_DIR", "/certificates"),
			Timeout: e.duration("BLOB_TIMEOUT", 15*time.Second),
		},
		Kafka: Kafka{
			Brokers: e.list("KAFKA_BROKERS"),
			Topic:   e.str("KAFKA_TOPIC", "certledger.lifecycle"),
		},
	}

	if cfg.Server.JWTSigningKey == "" {
		if cfg.IsProduction() {
			e.fail("JWT_SIGNING_KEY is required in production")
		}
		cfg.Server.JWTSigningKey = devSigningKey
	}
	cfg.validate(e)
	if len(e.errs) > 0 {
		return Config{}, errors.Join(e.errs...)
	}
	return cfg, nil
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

func (c Config) validate(e *envReader) {
	switch c.Cache.Driver {
	case CacheDriverPostgres:
		if c.Cache.DatabaseURL == "" {
			e.fail("DATABASE_URL is required for CACHE_DRIVER=postgres")
		}
	case CacheDriverRedis:
		if c.Cache.RedisURL == "" {
			e.fail("REDIS_URL is required for CACHE_DRIVER=redis")
		}
	case CacheDriverSQLite, CacheDriverMemory:
	default:
		e.fail(fmt.Sprintf("unknown CACHE_DRIVER %q", c.Cache.Driver))
	}

	switch c.Ledger.Driver {
	case LedgerDriverFabric:
		f := c.Ledger.Fabric
		if f.TLSCertPath == "" || f.CertPath == "" || f.KeyPath == "" {
			e.fail("FABRIC_TLS_CERT_PATH, FABRIC_CERT_PATH and FABRIC_KEY_PATH are required for LEDGER_DRIVER=fabric")
		}
	case LedgerDriverMemory:
		if c.IsProduction() {
			e.fail("LEDGER_DRIVER=memory is not allowed in production")
		}
	default:
		e.fail(fmt.Sprintf("unknown LEDGER_DRIVER %q", c.Ledger.Driver))
	}

	switch c.Blob.Driver {
	case BlobDriverIPFS, BlobDriverMemory:
	default:
		e.fail(fmt.Sprintf("unknown BLOB_DRIVER %q", c.Blob.Driver))
	}

	if c.Server.MaxUploadBytes <= 0 {
		e.fail("MAX_UPLOAD_BYTES must be positive")
	}
	if c.Cache.ResyncLimit <= 0 {
		e.fail("RESYNC_CONCURRENCY must be positive")
	}
	if c.Cache.ResyncEvery < 0 {
		e.fail("RESYNC_INTERVAL must not be negative")
	}
}

// envReader collects parse errors so every bad variable is reported at once.
type envReader struct {
	errs []error
}

func (e *envReader) fail(msg string) {
	e.errs = append(e.errs, errors.New(msg))
}

func (e *envReader) str(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (e *envReader) duration(key string, fallback time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func (e *envReader) int64(key string, fallback int64) int64 {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (e *envReader) boolean(key string, fallback bool) bool {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func (e *envReader) list(key string) []string {
	var out []string
	for part := range strings.SplitSeq(e.str(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
