package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Batch size bounds and defaults per operation kind.
const (
	MinBatchSize = 1
	MaxBatchSize = 100

	DefaultCreateBatchSize = 20
	DefaultUpdateBatchSize = 50
	DefaultDeleteBatchSize = 50

	DefaultSyncInterval = 30 * time.Minute
	DefaultScanInterval = 10 * time.Minute
	DefaultWorkers      = 4

	DefaultRetries     = 3
	DefaultBackoffMin  = 1 * time.Second
	DefaultBackoffMax  = 30 * time.Second
	DefaultCallTimeout = 60 * time.Second
)

// SyncConfig is the YAML-loaded sync surface: which directory groups to
// reconcile, how they map to remote groups, which directory attributes feed
// identity and contact fields, batch sizing, and timer cadences.
type SyncConfig struct {
	SyncInterval Duration `yaml:"sync_interval"`
	ScanInterval Duration `yaml:"scan_interval"`

	// Workers bounds how many groups reconcile in parallel.
	Workers int `yaml:"workers"`

	BatchSizes BatchSizes       `yaml:"batch_sizes"`
	Resilience Resilience       `yaml:"resilience"`
	Attributes AttributeMapping `yaml:"attributes"`
	Groups     []GroupMapping   `yaml:"groups"`
}

// Resilience configures the retry/backoff/timeout policy wrapped around each
// remote call. The dispatcher treats the wrapped call as opaque.
type Resilience struct {
	Retries     int      `yaml:"retries"`
	BackoffMin  Duration `yaml:"backoff_min"`
	BackoffMax  Duration `yaml:"backoff_max"`
	CallTimeout Duration `yaml:"call_timeout"`
}

// BatchSizes caps the number of items per remote call, per operation kind.
type BatchSizes struct {
	Create int `yaml:"create"`
	Update int `yaml:"update"`
	Delete int `yaml:"delete"`
}

// AttributeMapping names the directory attributes the sync reads. Identity
// is required; the contact fields are prioritized candidate lists where the
// first non-empty value wins (names matched case-insensitively).
type AttributeMapping struct {
	Identity string   `yaml:"identity"`
	Name     []string `yaml:"name"`
	Email    []string `yaml:"email"`
	Phone    []string `yaml:"phone"`
}

// RequiredAttributeNames returns every attribute name the directory fetch
// must populate for this mapping.
func (m AttributeMapping) RequiredAttributeNames() []string {
	names := []string{m.Identity}
	names = append(names, m.Name...)
	names = append(names, m.Email...)
	names = append(names, m.Phone...)
	return names
}

// GroupMapping binds one directory group to its remote sign-up groups.
type GroupMapping struct {
	GroupGUID    uuid.UUID `yaml:"group_guid"`
	RemoteGroups []string  `yaml:"remote_groups"`

	// RetiredRemoteGroups are remote groups this directory group used to map
	// to; members are removed from them on update.
	RetiredRemoteGroups []string `yaml:"retired_remote_groups"`
}

// Duration wraps time.Duration for YAML values like "30m" or "1h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(err, "parsing duration %q", raw)
	}
	d.Duration = parsed
	return nil
}

// LoadSyncConfig reads and validates the YAML sync config, applying defaults
// for anything unset.
func LoadSyncConfig(path string) (*SyncConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading sync config %s", path)
	}

	var cfg SyncConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing sync config %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies defaults and checks bounds. Called by LoadSyncConfig and
// directly by tests that build configs in memory.
func (c *SyncConfig) Validate() error {
	if c.SyncInterval.Duration == 0 {
		c.SyncInterval.Duration = DefaultSyncInterval
	}
	if c.ScanInterval.Duration == 0 {
		c.ScanInterval.Duration = DefaultScanInterval
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.Workers < 1 {
		return errors.Newf("workers must be positive, got %d", c.Workers)
	}

	if c.BatchSizes.Create == 0 {
		c.BatchSizes.Create = DefaultCreateBatchSize
	}
	if c.BatchSizes.Update == 0 {
		c.BatchSizes.Update = DefaultUpdateBatchSize
	}
	if c.BatchSizes.Delete == 0 {
		c.BatchSizes.Delete = DefaultDeleteBatchSize
	}
	for kind, size := range map[string]int{
		"create": c.BatchSizes.Create,
		"update": c.BatchSizes.Update,
		"delete": c.BatchSizes.Delete,
	} {
		if size < MinBatchSize || size > MaxBatchSize {
			return errors.Newf("%s batch size %d out of bounds [%d, %d]", kind, size, MinBatchSize, MaxBatchSize)
		}
	}

	if c.Resilience.Retries == 0 {
		c.Resilience.Retries = DefaultRetries
	}
	if c.Resilience.Retries < 0 {
		return errors.Newf("resilience.retries must not be negative, got %d", c.Resilience.Retries)
	}
	if c.Resilience.BackoffMin.Duration == 0 {
		c.Resilience.BackoffMin.Duration = DefaultBackoffMin
	}
	if c.Resilience.BackoffMax.Duration == 0 {
		c.Resilience.BackoffMax.Duration = DefaultBackoffMax
	}
	if c.Resilience.CallTimeout.Duration == 0 {
		c.Resilience.CallTimeout.Duration = DefaultCallTimeout
	}
	if c.Resilience.BackoffMin.Duration > c.Resilience.BackoffMax.Duration {
		return errors.New("resilience.backoff_min must not exceed backoff_max")
	}

	if c.Attributes.Identity == "" {
		return errors.New("attributes.identity is required")
	}

	if len(c.Groups) == 0 {
		return errors.New("at least one group mapping is required")
	}
	seen := make(map[uuid.UUID]bool, len(c.Groups))
	for i, g := range c.Groups {
		if g.GroupGUID == uuid.Nil {
			return errors.Newf("groups[%d]: group_guid is required", i)
		}
		if seen[g.GroupGUID] {
			return errors.Newf("groups[%d]: duplicate group_guid %s", i, g.GroupGUID)
		}
		seen[g.GroupGUID] = true
	}

	return nil
}
