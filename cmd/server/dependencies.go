package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"certledger/internal/credential/blobstore"
	"certledger/internal/credential/cache"
	"certledger/internal/credential/events"
	"certledger/internal/credential/ledger"
	"certledger/internal/credential/metrics"
	"certledger/internal/credential/service"
	"certledger/internal/platform/config"
	"certledger/internal/platform/database"
	"certledger/internal/platform/kafka/producer"
	"certledger/internal/platform/redis"
	"certledger/migrations"
)

// dependencies holds the stores selected by configuration and the closers
// that release them in reverse order.
type dependencies struct {
	blobs             service.BlobStore
	ledger            service.Ledger
	cache             service.CacheStore
	publisher         service.EventPublisher
	credentialMetrics *metrics.Metrics
	kafkaPing         func(context.Context) error

	closers []func() error
}

func (d *dependencies) onClose(fn func() error) {
	d.closers = append(d.closers, fn)
}

func (d *dependencies) close(log *slog.Logger) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			log.Error("failed to release dependency", "error", err)
		}
	}
}

func buildDependencies(ctx context.Context, cfg config.Config, log *slog.Logger) (*dependencies, error) {
	deps := &dependencies{credentialMetrics: metrics.New()}

	deps.blobs = buildBlobStore(cfg.Blob, log)

	led, err := buildLedger(cfg.Ledger, deps, log)
	if err != nil {
		deps.close(log)
		return nil, err
	}
	deps.ledger = led

	store, err := buildCache(ctx, cfg.Cache, deps, log)
	if err != nil {
		deps.close(log)
		return nil, err
	}
	deps.cache = store

	if err := buildPublisher(cfg.Kafka, deps, log); err != nil {
		deps.close(log)
		return nil, err
	}
	return deps, nil
}

func buildBlobStore(cfg config.Blob, log *slog.Logger) service.BlobStore {
	if cfg.Driver == config.BlobDriverIPFS {
		log.Info("using IPFS blob store", "api", cfg.APIURL, "mfs_dir", cfg.MFSDir)
		return blobstore.NewIPFS(blobstore.IPFSConfig{
			APIURL:      cfg.APIURL,
			MFSDir:      cfg.MFSDir,
			HTTPTimeout: cfg.Timeout,
		}, blobstore.WithIPFSLogger(log))
	}
	log.Warn("using in-memory blob store; payloads are lost on restart")
	return blobstore.NewMemory()
}

func buildLedger(cfg config.Ledger, deps *dependencies, log *slog.Logger) (service.Ledger, error) {
	if cfg.Driver != config.LedgerDriverFabric {
		log.Warn("using in-memory ledger; not authoritative across restarts")
		return ledger.NewMemory(), nil
	}

	f := cfg.Fabric
	fab, err := ledger.NewFabric(ledger.FabricConfig{
		PeerEndpoint:        f.PeerEndpoint,
		GatewayPeer:         f.GatewayPeer,
		TLSCertPath:         f.TLSCertPath,
		CertPath:            f.CertPath,
		KeyPath:             f.KeyPath,
		MSPID:               f.MSPID,
		Channel:             f.Channel,
		Chaincode:           f.Chaincode,
		EvaluateTimeout:     cfg.Timeout,
		EndorseTimeout:      cfg.Timeout,
		SubmitTimeout:       cfg.Timeout,
		CommitStatusTimeout: cfg.Timeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("connect fabric gateway: %w", err)
	}
	deps.onClose(fab.Close)
	log.Info("connected to fabric gateway", "peer", f.PeerEndpoint, "channel", f.Channel, "chaincode", f.Chaincode)
	return fab, nil
}

func buildCache(ctx context.Context, cfg config.Cache, deps *dependencies, log *slog.Logger) (service.CacheStore, error) {
	switch cfg.Driver {
	case config.CacheDriverPostgres, config.CacheDriverSQLite:
		dbCfg := database.DefaultConfig()
		dialect := cache.DialectPostgres
		dbCfg.URL = cfg.DatabaseURL
		if cfg.Driver == config.CacheDriverSQLite {
			dbCfg.Driver = database.DriverSQLite
			dbCfg.URL = cfg.SQLitePath
			dialect = cache.DialectSQLite
		}
		pool, err := database.New(dbCfg)
		if err != nil {
			return nil, err
		}
		deps.onClose(pool.Close)
		if err := database.Migrate(ctx, pool.DB(), migrations.FS); err != nil {
			return nil, fmt.Errorf("migrate cache schema: %w", err)
		}
		log.Info("using relational cache", "driver", dbCfg.Driver)
		return cache.NewSQL(pool.DB(), dialect, cache.WithSQLMetrics(deps.credentialMetrics)), nil

	case config.CacheDriverRedis:
		client, err := redis.New(ctx, redis.DefaultConfig(cfg.RedisURL), prometheus.DefaultRegisterer)
		if err != nil {
			return nil, err
		}
		deps.onClose(client.Close)
		statsCtx, cancel := context.WithCancel(context.Background())
		deps.onClose(func() error { cancel(); return nil })
		go client.RunPoolStats(statsCtx, 15*time.Second)
		log.Info("using redis cache", "ttl", cfg.TTL)
		return cache.NewRedis(client.Client, cfg.TTL, deps.credentialMetrics), nil

	default:
		log.Warn("using in-memory cache")
		return cache.NewMemory(), nil
	}
}

func buildPublisher(cfg config.Kafka, deps *dependencies, log *slog.Logger) error {
	if len(cfg.Brokers) == 0 {
		deps.publisher = events.NoopPublisher{}
		return nil
	}

	prodCfg := producer.DefaultConfig()
	prodCfg.Brokers = strings.Join(cfg.Brokers, ",")
	prod, err := producer.New(prodCfg, log)
	if err != nil {
		return fmt.Errorf("create kafka producer: %w", err)
	}
	deps.onClose(prod.Close)

	pub := events.NewKafkaPublisher(prod, cfg.Topic, events.WithLogger(log), events.WithAsyncBuffer(256))
	deps.onClose(func() error { pub.Close(); return nil })

	deps.publisher = pub
	deps.kafkaPing = prod.Ping
	log.Info("publishing lifecycle events", "topic", cfg.Topic, "brokers", cfg.Brokers)
	return nil
}
