// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/metrics"
)

const (
	DefaultCacheSize = 1024
	DefaultCacheTTL  = 5 * time.Minute
)

// TuningStore is the subset of Store the cache reads through and writes through.
type TuningStore interface {
	GetTuningRecord(ctx context.Context, channelID string) (model.TuningRecord, error)
	PutTuningRecord(ctx context.Context, rec model.TuningRecord) error
	DeleteTuningRecord(ctx context.Context, channelID string) error
}

// CachedCatalog serves tuning records from an expiring LRU in front of a store.
// Misses are not cached.
type CachedCatalog struct {
	Next TuningStore

	lru *lru.LRU[string, model.TuningRecord]
	sf  singleflight.Group
}

func NewCachedCatalog(next TuningStore, size int, ttl time.Duration) *CachedCatalog {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedCatalog{
		Next: next,
		lru:  lru.NewLRU[string, model.TuningRecord](size, nil, ttl),
	}
}

func (c *CachedCatalog) GetTuningRecord(ctx context.Context, channelID string) (model.TuningRecord, error) {
	if rec, ok := c.lru.Get(channelID); ok {
		metrics.RecordCatalogCache(true)
		return rec, nil
	}
	metrics.RecordCatalogCache(false)

	v, err, _ := c.sf.Do(channelID, func() (any, error) {
		rec, err := c.Next.GetTuningRecord(ctx, channelID)
		if err != nil {
			return nil, err
		}
		c.lru.Add(channelID, rec)
		return rec, nil
	})
	if err != nil {
		return model.TuningRecord{}, err
	}
	return v.(model.TuningRecord), nil
}

func (c *CachedCatalog) PutTuningRecord(ctx context.Context, rec model.TuningRecord) error {
	defer c.lru.Remove(rec.ChannelID)
	return c.Next.PutTuningRecord(ctx, rec)
}

func (c *CachedCatalog) DeleteTuningRecord(ctx context.Context, channelID string) error {
	defer c.lru.Remove(channelID)
	return c.Next.DeleteTuningRecord(ctx, channelID)
}

// Invalidate drops every cached record.
func (c *CachedCatalog) Invalidate() {
	c.lru.Purge()
}

// Len returns the number of cached records.
func (c *CachedCatalog) Len() int { return c.lru.Len() }
