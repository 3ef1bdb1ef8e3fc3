// Package cache keeps processed events between fetch cycles. Entries are
// keyed by a fingerprint of every setting that changes the fetched data and
// expire after a TTL derived from the refresh interval.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"agendacal/internal/config"
	appLog "agendacal/internal/log"
	"agendacal/internal/model"
)

const (
	// KeyNamespace prefixes every event cache key.
	KeyNamespace = "agendacal"

	// ReloadTTL applies to requests caused by a manual reload when
	// cache.short_ttl_on_reload is enabled.
	ReloadTTL = 5 * time.Second

	// FallbackTTL applies when no refresh interval is configured.
	FallbackTTL = config.DefaultRefreshMinutes * time.Minute

	// ExpiryMultiplier scales the TTL for the periodic sweep.
	ExpiryMultiplier = 2
)

// Record is the persisted value of a cache entry.
type Record struct {
	Events []model.ProcessedEvent `json:"events"`
	// Timestamp is the write time in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// Cache implements TTL validation on top of a Store.
type Cache struct {
	store Store
	now   func() time.Time
}

// New wraps a Store.
func New(store Store) *Cache {
	return &Cache{store: store, now: time.Now}
}

// SetClock replaces the time source, mostly for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// Get returns the cached events for key if the entry is younger than ttl.
// Stale or unreadable entries are deleted and reported as a miss. The
// returned slice is freshly decoded and owned by the caller.
func (c *Cache) Get(key string, ttl time.Duration) ([]model.ProcessedEvent, bool) {
	rec, err := c.read(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			appLog.Warn("cache: dropping unreadable entry", "key", key, "err", err)
			c.Delete(key)
		}
		return nil, false
	}

	age := c.now().Sub(time.UnixMilli(rec.Timestamp))
	if age >= ttl {
		appLog.Debug("cache: entry expired", "key", key, "age", age, "ttl", ttl)
		c.Delete(key)
		return nil, false
	}
	if rec.Events == nil {
		rec.Events = []model.ProcessedEvent{}
	}
	return rec.Events, true
}

// Put persists events under key with the current timestamp.
func (c *Cache) Put(key string, events []model.ProcessedEvent) error {
	if events == nil {
		events = []model.ProcessedEvent{}
	}
	data, err := json.Marshal(Record{Events: events, Timestamp: c.now().UnixMilli()})
	if err != nil {
		return err
	}
	return c.store.Set(key, data)
}

// Delete removes key; failures are logged only.
func (c *Cache) Delete(key string) {
	if err := c.store.Delete(key); err != nil {
		appLog.Error("cache: delete failed", err, "key", key)
	}
}

// Sweep removes entries under prefix that are older than ttl times
// ExpiryMultiplier, plus entries that cannot be decoded. It returns the
// number of removed entries.
func (c *Cache) Sweep(prefix string, ttl time.Duration) int {
	keys, err := c.store.Keys()
	if err != nil {
		appLog.Error("cache: list keys failed", err)
		return 0
	}

	maxAge := ttl * ExpiryMultiplier
	now := c.now()
	removed := 0
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rec, err := c.read(key)
		if err == nil && now.Sub(time.UnixMilli(rec.Timestamp)) <= maxAge {
			continue
		}
		c.Delete(key)
		removed++
	}
	if removed > 0 {
		appLog.Info("cache: sweep removed entries", "prefix", prefix, "removed", removed)
	}
	return removed
}

func (c *Cache) read(key string) (Record, error) {
	var rec Record
	data, err := c.store.Get(key)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// TTL selects the entry lifetime for one lookup.
func TTL(cfg *config.Config, manualReload bool) time.Duration {
	if manualReload && cfg.Cache.ShortTTLOnReload {
		return ReloadTTL
	}
	if cfg.RefreshMinutes > 0 {
		return time.Duration(cfg.RefreshMinutes) * time.Minute
	}
	return FallbackTTL
}

// KeyPrefix is the prefix shared by all keys of one instance.
func KeyPrefix(cfg *config.Config) string {
	return KeyNamespace + "-" + sanitize(cfg.InstanceID) + "-"
}

// fingerprint lists everything that changes which events are fetched and
// kept. Display-only settings are deliberately absent.
type fingerprint struct {
	Instance  string   `json:"instance"`
	Sources   []string `json:"sources"`
	Days      int      `json:"days"`
	ShowPast  bool     `json:"show_past"`
	StartDate string   `json:"start_date"`
	Dedup     bool     `json:"dedup"`
	Patterns  []string `json:"patterns"`
}

// Fingerprint derives the deterministic cache key for cfg.
func Fingerprint(cfg *config.Config) string {
	fp := fingerprint{
		Instance:  cfg.InstanceID,
		Days:      int(cfg.Days),
		ShowPast:  cfg.ShowPastEvents,
		StartDate: strings.TrimSpace(cfg.StartDate),
		Dedup:     cfg.FilterDuplicates,
	}
	for _, s := range cfg.Sources {
		fp.Sources = append(fp.Sources, s.ID)
		if s.Allow != "" || s.Block != "" {
			fp.Patterns = append(fp.Patterns, s.ID+"\x00"+s.Allow+"\x00"+s.Block)
		}
	}
	sort.Strings(fp.Sources)
	sort.Strings(fp.Patterns)

	// Marshalling a struct of strings, ints and bools cannot fail.
	data, _ := json.Marshal(fp)
	sum := sha256.Sum256(data)
	return KeyPrefix(cfg) + hex.EncodeToString(sum[:8])
}

func sanitize(s string) string {
	if s == "" {
		return "default"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
