package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	appLog "agendacal/internal/log"
	"agendacal/internal/model"
)

// Count is an integer setting that tolerates non-numeric input: anything
// that does not parse decodes as 0 and is later replaced by the default.
type Count int

// UnmarshalYAML implements lenient integer decoding.
func (c *Count) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		*c = 0
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		appLog.Warn("config: ignoring non-numeric value", "value", raw, "line", node.Line)
		*c = 0
		return nil
	}
	*c = Count(n)
	return nil
}

// SourceConfig describes a single calendar source. In YAML a source may be
// written either as a bare id string or as a mapping; both forms decode into
// this type.
type SourceConfig struct {
	// ID identifies the source; it is stamped on every event it returns.
	ID string `yaml:"id" json:"id"`

	Color       string `yaml:"color,omitempty" json:"color,omitempty"`
	AccentColor string `yaml:"accent_color,omitempty" json:"accent_color,omitempty"`
	Label       string `yaml:"label,omitempty" json:"label,omitempty"`

	// Allow keeps only events whose summary matches; Block drops matches.
	// Allow wins when both are set.
	Allow string `yaml:"allow,omitempty" json:"allow,omitempty"`
	Block string `yaml:"block,omitempty" json:"block,omitempty"`

	// Display overrides. Zero/nil means "use the global setting".
	MaxEvents     int   `yaml:"max_events,omitempty" json:"max_events,omitempty"`
	ShowTime      *bool `yaml:"show_time,omitempty" json:"show_time,omitempty"`
	ShowLocation  *bool `yaml:"show_location,omitempty" json:"show_location,omitempty"`
	SplitMultiDay *bool `yaml:"split_multi_day,omitempty" json:"split_multi_day,omitempty"`

	// Transport.
	Type            string   `yaml:"type,omitempty" json:"type,omitempty"` // "ics", "caldav", "icloud", "google", "static"
	URL             string   `yaml:"url,omitempty" json:"url,omitempty"`
	Username        string   `yaml:"username,omitempty" json:"username,omitempty"`
	Password        string   `yaml:"password,omitempty" json:"-"`
	PasswordCmd     string   `yaml:"password_cmd,omitempty" json:"-"`
	Calendars       []string `yaml:"calendars,omitempty" json:"calendars,omitempty"`
	CalendarID      string   `yaml:"calendar_id,omitempty" json:"calendar_id,omitempty"`
	CredentialsFile string   `yaml:"credentials_file,omitempty" json:"-"`
	TokenFile       string   `yaml:"token_file,omitempty" json:"-"`

	// Events is used by the "static" type: events listed inline.
	Events []model.CalendarEvent `yaml:"events,omitempty" json:"-"`
}

// sourceConfigFields avoids recursion in UnmarshalYAML.
type sourceConfigFields SourceConfig

// UnmarshalYAML accepts either a scalar id or a full mapping.
func (s *SourceConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var id string
		if err := node.Decode(&id); err != nil {
			return err
		}
		*s = SourceConfig{ID: strings.TrimSpace(id)}
		return nil
	}
	var raw sourceConfigFields
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*s = SourceConfig(raw)
	s.ID = strings.TrimSpace(s.ID)
	return nil
}

// GetPassword returns the password for a source, executing password_cmd if needed.
func (s *SourceConfig) GetPassword() (string, error) {
	if s.Password != "" {
		return s.Password, nil
	}
	if s.PasswordCmd == "" {
		return "", nil
	}

	out, err := exec.Command("sh", "-c", s.PasswordCmd).Output()
	if err != nil {
		return "", fmt.Errorf("execute password_cmd for %s: %w", s.ID, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CompactConfig governs the truncated (non-expanded) view.
type CompactConfig struct {
	// Days limits the number of day buckets; 0 means the full day count.
	Days Count `yaml:"days" json:"days"`
	// Events caps the number of real events; 0 means unlimited.
	Events Count `yaml:"events" json:"events"`
	// CompleteDays never cuts a day in half when Events is reached.
	CompleteDays bool `yaml:"complete_days" json:"complete_days"`
}

// CacheConfig controls the event cache.
type CacheConfig struct {
	// Dir is the diskv base path. Empty keeps the cache in memory.
	Dir string `yaml:"dir" json:"dir"`
	// ShortTTLOnReload uses a few seconds of TTL for requests caused by a
	// manual reload so the user sees fresh data.
	ShortTTLOnReload bool `yaml:"short_ttl_on_reload" json:"short_ttl_on_reload"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// InstanceID scopes cache keys so several agendas can share one store.
	InstanceID string `yaml:"instance_id" json:"instance_id"`

	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as display zone. Empty uses time.Local.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Locale selects the built-in string table and, for WeekStart "locale",
	// the first day of the week.
	Locale string `yaml:"locale" json:"locale"`

	// WeekStart is "monday" (default), "sunday", "saturday" or "locale".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// WeekNumbers is "none" (default), "iso" or "simple".
	WeekNumbers string `yaml:"week_numbers" json:"week_numbers"`

	// Days is the number of days to show, starting at StartDate.
	Days Count `yaml:"days" json:"days"`

	// StartDate is empty (today), YYYY-MM-DD, an ISO timestamp, or today±N.
	StartDate string `yaml:"start_date" json:"start_date"`

	ShowPastEvents   bool `yaml:"show_past_events" json:"show_past_events"`
	FilterDuplicates bool `yaml:"filter_duplicates" json:"filter_duplicates"`
	SplitMultiDay    bool `yaml:"split_multi_day" json:"split_multi_day"`
	ShowEmptyDays    bool `yaml:"show_empty_days" json:"show_empty_days"`

	// RefreshMinutes is also the cache TTL.
	RefreshMinutes Count `yaml:"refresh_minutes" json:"refresh_minutes"`

	// RefreshCron is a cron-style schedule used by "serve" for background
	// refreshes. If empty it is derived from RefreshMinutes.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// TimeFormat is "24h" (default) or "12h".
	TimeFormat   string `yaml:"time_format" json:"time_format"`
	ShowEndTime  bool   `yaml:"show_end_time" json:"show_end_time"`
	ShowLocation bool   `yaml:"show_location" json:"show_location"`
	// StripCountry removes a trailing ", Country" component from locations.
	StripCountry bool `yaml:"strip_country" json:"strip_country"`

	Compact CompactConfig `yaml:"compact" json:"compact"`
	Cache   CacheConfig   `yaml:"cache" json:"cache"`

	// Sources is ordered: earlier sources win duplicate resolution and
	// sort ties.
	Sources []SourceConfig `yaml:"sources" json:"sources"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	DefaultDays           = 3
	DefaultRefreshMinutes = 30
	DefaultListen         = "127.0.0.1:8080"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		InstanceID:       uuid.NewString(),
		Listen:           DefaultListen,
		Locale:           "en",
		WeekStart:        "monday",
		WeekNumbers:      "none",
		Days:             DefaultDays,
		FilterDuplicates: true,
		SplitMultiDay:    true,
		RefreshMinutes:   DefaultRefreshMinutes,
		RefreshCron:      "*/30 * * * *",
		TimeFormat:       "24h",
		ShowEndTime:      true,
		ShowLocation:     true,
		Cache:            CacheConfig{ShortTTLOnReload: true},
		Sources:          []SourceConfig{},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Locale == "" {
		c.Locale = "en"
	}

	c.WeekStart = strings.ToLower(strings.TrimSpace(c.WeekStart))
	switch c.WeekStart {
	case "monday", "sunday", "saturday", "locale":
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = "monday"
	}

	c.WeekNumbers = strings.ToLower(strings.TrimSpace(c.WeekNumbers))
	switch c.WeekNumbers {
	case "iso", "simple", "none":
	default:
		c.WeekNumbers = "none"
	}

	if c.Days <= 0 {
		c.Days = DefaultDays
	}
	if c.RefreshMinutes <= 0 {
		c.RefreshMinutes = DefaultRefreshMinutes
	}
	if c.RefreshCron == "" {
		c.RefreshCron = cronForMinutes(int(c.RefreshMinutes))
	}
	if c.TimeFormat != "12h" {
		c.TimeFormat = "24h"
	}
	if c.Compact.Days < 0 {
		c.Compact.Days = 0
	}
	if c.Compact.Events < 0 {
		c.Compact.Events = 0
	}
	c.Cache.Dir = expandPath(c.Cache.Dir)

	c.Sources = normalizeSources(c.Sources)
}

// normalizeSources drops sources without an id and defaults the transport.
func normalizeSources(in []SourceConfig) []SourceConfig {
	out := make([]SourceConfig, 0, len(in))
	for _, s := range in {
		if s.ID == "" {
			continue
		}
		if s.Type == "" {
			switch {
			case len(s.Events) > 0:
				s.Type = "static"
			case s.URL != "":
				s.Type = "ics"
			default:
				s.Type = "static"
			}
		}
		s.Type = strings.ToLower(s.Type)
		if s.MaxEvents < 0 {
			s.MaxEvents = 0
		}
		out = append(out, s)
	}
	return out
}

func cronForMinutes(m int) string {
	if m >= 60 {
		return "0 * * * *"
	}
	return fmt.Sprintf("*/%d * * * *", m)
}

// Location resolves Timezone. Empty or unknown zones fall back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Warn("unknown timezone, using local time", "timezone", c.Timezone)
		return time.Local
	}
	return loc
}

// SourceIndex maps source ids to their priority (configuration order).
func (c *Config) SourceIndex() map[string]int {
	idx := make(map[string]int, len(c.Sources))
	for i, s := range c.Sources {
		if _, seen := idx[s.ID]; !seen {
			idx[s.ID] = i
		}
	}
	return idx
}

// Source returns the first source with the given id.
func (c *Config) Source(id string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// Parse decodes YAML configuration bytes on top of the defaults and
// normalizes the result. The instance id is left empty when absent.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	cfg.InstanceID = ""
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600 perms
//     and returned.
//   - If the file exists, it is decoded and normalized. A missing instance_id
//     is generated and persisted so cache keys stay stable across restarts.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
		if err := Save(path, cfg); err != nil {
			return cfg, fmt.Errorf("persist instance id: %w", err)
		}
	}

	return cfg, nil
}

// Save writes the given configuration to the specified path atomically via a
// temp file + rename, with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".agendacal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
