package tagcfg

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Tag kinds as they appear in the "type" field of the configuration document.
const (
	KindCoil     = "coil"
	KindRegister = "register"
)

// Tag is one named PLC value to sample. Coils are single bits; registers are
// 32-bit numerics assembled from two consecutive 16-bit words.
type Tag struct {
	Name    string  `json:"name"`
	Address int     `json:"address"`
	Type    string  `json:"type"`
	Scale   float64 `json:"scale"`
	Enabled bool    `json:"enabled"`
}

// Kind returns the normalized (lower-cased) tag kind.
func (t Tag) Kind() string {
	return strings.ToLower(t.Type)
}

// IsRegister reports whether the tag is a register tag.
func (t Tag) IsRegister() bool {
	return t.Kind() == KindRegister
}

// Column returns the tag's database column name (spaces become underscores).
func (t Tag) Column() string {
	return CleanName(t.Name)
}

// Validate checks the tag's own fields.
func (t Tag) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("tag name is required")
	}
	if t.Address < 0 {
		return fmt.Errorf("tag %q: address must be non-negative", t.Name)
	}
	switch t.Kind() {
	case KindCoil, KindRegister:
	default:
		return fmt.Errorf("tag %q: type must be coil or register", t.Name)
	}
	return nil
}

// CleanName converts a tag name to its column form.
func CleanName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}

// Connection modes.
const (
	ModeTCP = "TCP"
	ModeADS = "ADS"
)

// Settings holds the PLC connection parameters shared by a document.
type Settings struct {
	Mode            string  `json:"mode"`
	IP              string  `json:"ip"`
	Port            int     `json:"port"`
	PollingInterval float64 `json:"polling_interval"`
	AMSNetID        string  `json:"ams_net_id,omitempty"`
	AMSPort         int     `json:"ams_port,omitempty"`
}

// Validate rejects settings that must never reach a logging session.
func (s Settings) Validate() error {
	switch s.Mode {
	case ModeTCP, ModeADS:
	default:
		return fmt.Errorf("mode must be TCP or ADS, got %q", s.Mode)
	}
	if net.ParseIP(s.IP) == nil {
		return fmt.Errorf("invalid IP address %q", s.IP)
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.PollingInterval < 0.1 || s.PollingInterval > 60.0 {
		return fmt.Errorf("polling interval must be between 0.1 and 60.0 seconds, got %g", s.PollingInterval)
	}
	if s.Mode == ModeADS {
		if err := ValidateNetID(s.AMSNetID); err != nil {
			return err
		}
		if s.AMSPort < 1 || s.AMSPort > 65535 {
			return fmt.Errorf("AMS port must be between 1 and 65535, got %d", s.AMSPort)
		}
	}
	return nil
}

// ValidateNetID checks an AMS net ID: six dot-separated integers 0-255.
func ValidateNetID(id string) error {
	parts := strings.Split(id, ".")
	if len(parts) != 6 {
		return fmt.Errorf("AMS net ID must have six dot-separated parts, got %q", id)
	}
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return fmt.Errorf("AMS net ID part %q out of range in %q", p, id)
		}
	}
	return nil
}

// Document aggregates the connection settings and the tag list. It is the
// unit that gets loaded, saved and fingerprinted.
type Document struct {
	Settings Settings `json:"global_settings"`
	Tags     []Tag    `json:"tags"`
}

// DefaultDocument returns the documented fallback configuration used when the
// configuration file is missing or unreadable.
func DefaultDocument() Document {
	return Document{
		Settings: Settings{
			Mode:            ModeTCP,
			IP:              "192.168.0.10",
			Port:            502,
			PollingInterval: 0.5,
			AMSNetID:        "",
			AMSPort:         851,
		},
		Tags: []Tag{},
	}
}

// EnabledTags returns the tags that participate in schema and sampling.
func (d Document) EnabledTags() []Tag {
	out := make([]Tag, 0, len(d.Tags))
	for _, t := range d.Tags {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out
}

// AddTag validates the tag against the document's invariants and appends it.
// Duplicate (address, kind) pairs among enabled tags and duplicate cleaned
// case-insensitive names are rejected.
func (d *Document) AddTag(tag Tag) error {
	if err := tag.Validate(); err != nil {
		return err
	}
	if tag.Scale == 0 {
		tag.Scale = 1.0
	}
	name := strings.ToLower(CleanName(tag.Name))
	for _, existing := range d.Tags {
		if strings.ToLower(existing.Column()) == name {
			return fmt.Errorf("tag name %q already exists", tag.Name)
		}
		if tag.Enabled && existing.Enabled &&
			existing.Address == tag.Address && existing.Kind() == tag.Kind() {
			return fmt.Errorf("tag %q duplicates enabled %s at address %d", tag.Name, tag.Kind(), tag.Address)
		}
	}
	d.Tags = append(d.Tags, tag)
	return nil
}

// Validate checks the settings and the tag-set invariants of the document.
func (d Document) Validate() error {
	if err := d.Settings.Validate(); err != nil {
		return err
	}
	names := make(map[string]string, len(d.Tags))
	slots := make(map[string]string, len(d.Tags))
	for _, t := range d.Tags {
		if err := t.Validate(); err != nil {
			return err
		}
		name := strings.ToLower(t.Column())
		if prev, ok := names[name]; ok {
			return fmt.Errorf("tags %q and %q collide on column name %q", prev, t.Name, name)
		}
		names[name] = t.Name
		if !t.Enabled {
			continue
		}
		slot := fmt.Sprintf("%s@%d", t.Kind(), t.Address)
		if prev, ok := slots[slot]; ok {
			return fmt.Errorf("tags %q and %q both read %s", prev, t.Name, slot)
		}
		slots[slot] = t.Name
	}
	return nil
}

// Normalize fills in defaults that older documents omit.
func (d *Document) Normalize() {
	for i := range d.Tags {
		if d.Tags[i].Scale == 0 {
			d.Tags[i].Scale = 1.0
		}
	}
	if d.Settings.AMSPort == 0 {
		d.Settings.AMSPort = 851
	}
}
