package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/MUKTHARS/clmprod-sub000/model"
	"github.com/MUKTHARS/clmprod-sub000/pkg/logger"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// IngestPayload is the signed body posted by the extraction pipeline.
// Content is the raw record as a JSON string.
type IngestPayload struct {
	Checksum string `json:"checksum" binding:"required"`
	Content  string `json:"content" binding:"required"`
}

// Archiver stores raw payloads
type Archiver interface {
	Put(ctx context.Context, contractID string, payload []byte, at time.Time) (string, error)
}

// IngestLocker serialises ingestion of one contract id
type IngestLocker interface {
	Lock(ctx context.Context, contractID string) (release func(context.Context), err error)
}

type IngestResult struct {
	Contract   *model.Contract `json:"contract"`
	Shape      string          `json:"shape"`
	ArchivedAs string          `json:"archived_as,omitempty"`
}

// IngestService turns verified upstream payloads into draft contracts.
// locker and archive are optional.
type IngestService struct {
	seed      string
	contracts *ContractStore
	pending   PendingInvalidator
	locker    IngestLocker
	archive   Archiver
	now       func() time.Time
}

func NewIngestService(seed string, contracts *ContractStore, pending PendingInvalidator, locker IngestLocker, archive Archiver) *IngestService {
	return &IngestService{
		seed:      seed,
		contracts: contracts,
		pending:   pending,
		locker:    locker,
		archive:   archive,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Checksum returns hex(sha256(seed + content))
func (s *IngestService) Checksum(content string) string {
	hash := sha256.Sum256([]byte(s.seed + content))
	return hex.EncodeToString(hash[:])
}

// VerifyChecksum checks the signature of an ingest payload
func (s *IngestService) VerifyChecksum(checksum, content string) bool {
	expected := s.Checksum(content)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(checksum)) == 1
}

// Ingest normalizes content and stores it as a new draft. An id that already
// exists is a conflict; ingestion never overwrites a contract.
func (s *IngestService) Ingest(ctx context.Context, content []byte) (*IngestResult, error) {
	ctx, span := tracer.Start(ctx, "ingest.contract")
	defer span.End()

	res, err := s.ingest(ctx, content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn(ctx, "ingestion rejected", "kind", KindOf(err), "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.String("contract.id", res.Contract.ID), attribute.String("ingest.shape", res.Shape))
	logger.Info(ctx, "contract ingested", "contract_id", res.Contract.ID, "shape", res.Shape, "archived_as", res.ArchivedAs)
	return res, nil
}

func (s *IngestService) ingest(ctx context.Context, content []byte) (*IngestResult, error) {
	rec, err := ParseRaw(content)
	if err != nil {
		return nil, err
	}
	contract, err := rec.Normalize()
	if err != nil {
		return nil, err
	}
	contract.Status = model.StatusDraft
	contract.History = nil

	if s.locker != nil {
		release, err := s.locker.Lock(ctx, contract.ID)
		if err != nil {
			return nil, err
		}
		defer release(ctx)
	}

	if err := s.contracts.Create(ctx, contract); err != nil {
		return nil, err
	}
	if s.pending != nil {
		s.pending.Invalidate(ctx)
	}

	res := &IngestResult{Contract: contract, Shape: rec.Shape.String()}
	if s.archive != nil {
		name, err := s.archive.Put(ctx, contract.ID, content, s.now())
		if err != nil {
			logger.Error(ctx, "failed to archive raw payload", "contract_id", contract.ID, "error", err)
		} else {
			res.ArchivedAs = name
		}
	}
	return res, nil
}

// RedisIngestLocker holds a short redis lock per contract id
type RedisIngestLocker struct {
	locker *redislock.Client
	ttl    time.Duration
}

func NewRedisIngestLocker(rdb *redis.Client, ttl time.Duration) *RedisIngestLocker {
	return &RedisIngestLocker{locker: redislock.New(rdb), ttl: ttl}
}

func (l *RedisIngestLocker) Lock(ctx context.Context, contractID string) (func(context.Context), error) {
	lock, err := l.locker.Obtain(ctx, "lock:ingest:"+contractID, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, newError(KindConflict, "contract %s is already being ingested", contractID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain ingest lock: %w", err)
	}
	return func(ctx context.Context) {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logger.Warn(ctx, "failed to release ingest lock", "contract_id", contractID, "error", err)
		}
	}, nil
}
