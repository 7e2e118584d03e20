package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"certledger/internal/credential/metrics"
	"certledger/internal/credential/models"
	"certledger/internal/sentinel"
)

const redisKeyPrefix = "certledger:certificate:"

// RedisStore keeps the cache as JSON documents in Redis. A zero TTL keeps
// entries until they are overwritten.
type RedisStore struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewRedis constructs a Redis-backed cache store; m may be nil.
func NewRedis(client *redis.Client, ttl time.Duration, m *metrics.Metrics) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, metrics: m, now: time.Now}
}

type redisRecord struct {
	CertID           string    `json:"cert_id"`
	SubjectID        string    `json:"subject_id"`
	SubjectName      string    `json:"subject_name"`
	Major            string    `json:"major"`
	Program          string    `json:"program"`
	ContentID        string    `json:"content_id"`
	ContentHash      string    `json:"content_hash"`
	Status           string    `json:"status"`
	IssuedAt         time.Time `json:"issued_at"`
	SupersededBy     string    `json:"superseded_by,omitempty"`
	RevocationReason string    `json:"revocation_reason,omitempty"`
	RevokedAt        time.Time `json:"revoked_at,omitzero"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toRedisRecord(r models.CertificateRecord, now time.Time) redisRecord {
	doc := redisRecord{
		CertID:           r.CertID.String(),
		SubjectID:        r.SubjectID,
		SubjectName:      r.SubjectName,
		Major:            r.Major,
		Program:          r.Program,
		ContentID:        r.ContentID,
		ContentHash:      r.ContentHash,
		Status:           r.Status.String(),
		IssuedAt:         r.IssuedAt.UTC(),
		SupersededBy:     r.SupersededBy.String(),
		RevocationReason: r.RevocationReason,
		UpdatedAt:        now,
	}
	if r.Status == models.StatusRevoked {
		doc.RevokedAt = now
	}
	return doc
}

// keepRevokedAt carries the first recorded revocation time over a rewrite.
func (d *redisRecord) keepRevokedAt(prev redisRecord) {
	if !prev.RevokedAt.IsZero() {
		d.RevokedAt = prev.RevokedAt
	}
}

func (d redisRecord) toModel() (models.CertificateRecord, error) {
	status, err := models.ParseStatus(d.Status)
	if err != nil {
		return models.CertificateRecord{}, err
	}
	return models.CertificateRecord{
		CertID:           models.CertID(d.CertID),
		SubjectID:        d.SubjectID,
		SubjectName:      d.SubjectName,
		Major:            d.Major,
		Program:          d.Program,
		ContentID:        d.ContentID,
		ContentHash:      d.ContentHash,
		Status:           status,
		IssuedAt:         d.IssuedAt.UTC(),
		SupersededBy:     models.CertID(d.SupersededBy),
		RevocationReason: d.RevocationReason,
	}, nil
}

// Upsert writes the cached copy of record. An existing revoked_at survives the
// rewrite; an unreadable existing document is replaced.
func (c *RedisStore) Upsert(ctx context.Context, record models.CertificateRecord) error {
	key := redisKey(record.CertID)
	doc := toRedisRecord(record, c.now().UTC())

	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var prev redisRecord
			if json.Unmarshal(data, &prev) == nil {
				doc.keepRevokedAt(prev)
			}
		}
		payload, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode certificate cache: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, c.ttl)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("save certificate cache: %w", err)
	}
	return nil
}

// FindByID loads the cached copy of certID.
//
// Errors: returns ErrNotFound on cache miss; wraps Redis or JSON decode errors.
func (c *RedisStore) FindByID(ctx context.Context, certID models.CertID) (models.CertificateRecord, error) {
	start := time.Now()
	data, err := c.client.Get(ctx, redisKey(certID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.recordLookup("miss", start)
			return models.CertificateRecord{}, sentinel.ErrNotFound
		}
		c.recordLookup("error", start)
		return models.CertificateRecord{}, fmt.Errorf("find certificate cache: %w", err)
	}

	var doc redisRecord
	if err := json.Unmarshal(data, &doc); err != nil {
		c.recordLookup("error", start)
		return models.CertificateRecord{}, fmt.Errorf("decode certificate cache: %w", err)
	}
	c.recordLookup("hit", start)
	return doc.toModel()
}

// MarkStatus rewrites the status fields under WATCH so concurrent mirrors of
// the same certificate do not lose updates.
func (c *RedisStore) MarkStatus(ctx context.Context, certID models.CertID, change models.StatusChange) error {
	key := redisKey(certID)
	at := change.At
	if at.IsZero() {
		at = c.now()
	}
	at = at.UTC()

	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return sentinel.ErrNotFound
			}
			return err
		}
		var doc redisRecord
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("decode certificate cache: %w", err)
		}
		doc.Status = change.Status.String()
		if change.RevocationReason != "" {
			doc.RevocationReason = change.RevocationReason
		}
		if !change.SupersededBy.IsZero() {
			doc.SupersededBy = change.SupersededBy.String()
		}
		if change.Status == models.StatusRevoked && doc.RevokedAt.IsZero() {
			doc.RevokedAt = at
		}
		doc.UpdatedAt = at
		payload, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode certificate cache: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, c.ttl)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark certificate status: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (c *RedisStore) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Backend names the store for metrics and logs.
func (c *RedisStore) Backend() string {
	return "redis"
}

func (c *RedisStore) recordLookup(result string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordCacheLookup(c.Backend(), result, time.Since(start).Seconds())
}

func redisKey(certID models.CertID) string {
	return redisKeyPrefix + certID.String()
}
