// Package redis persists wizard drafts in Redis so an operator can resume a
// session after a restart.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"evofit/health-protocol/internal/config"
	"evofit/health-protocol/internal/logger"
	"evofit/health-protocol/internal/repository"
	"evofit/health-protocol/internal/wizard"
)

const keyPrefix = "evofit:wizard:draft:"

// DraftStore keeps one JSON-encoded session per operator, expiring after ttl.
type DraftStore struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// Connect opens a client from config and verifies it with a ping.
func Connect(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func NewDraftStore(rdb *goredis.Client, ttl time.Duration, log *logger.Logger) *DraftStore {
	if log == nil {
		log = logger.Nop()
	}
	return &DraftStore{
		log: log.With("service", "RedisDraftStore"),
		rdb: rdb,
		ttl: ttl,
	}
}

func draftKey(operatorID primitive.ObjectID) string {
	return keyPrefix + operatorID.Hex()
}

func (d *DraftStore) Save(ctx context.Context, s wizard.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return d.rdb.Set(ctx, draftKey(s.OperatorID), raw, d.ttl).Err()
}

func (d *DraftStore) Load(ctx context.Context, operatorID primitive.ObjectID) (wizard.Session, error) {
	raw, err := d.rdb.Get(ctx, draftKey(operatorID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return wizard.Session{}, repository.ErrNotFound
	}
	if err != nil {
		return wizard.Session{}, err
	}
	var s wizard.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		// A draft we cannot read is as good as none.
		d.log.Warn("Dropping unreadable wizard draft", "operator", operatorID.Hex(), "error", err)
		_ = d.rdb.Del(ctx, draftKey(operatorID)).Err()
		return wizard.Session{}, repository.ErrNotFound
	}
	return s, nil
}

func (d *DraftStore) Delete(ctx context.Context, operatorID primitive.ObjectID) error {
	return d.rdb.Del(ctx, draftKey(operatorID)).Err()
}

var _ wizard.DraftStore = (*DraftStore)(nil)
