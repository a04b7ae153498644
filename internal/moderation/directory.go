package moderation

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// StaffMember is a user with an elevated role
type StaffMember struct {
	UserID string `json:"user_id"`
	Handle string `json:"handle,omitempty"`
	Role   Role   `json:"role"`
	Note   string `json:"note,omitempty"`
}

// DirectoryConfig is the JSON shape of the staff directory file
type DirectoryConfig struct {
	Staff []StaffMember `json:"staff"`
}

// Validate checks that every staff entry has an id and a staff role
func (c *DirectoryConfig) Validate() error {
	seen := make(map[string]bool, len(c.Staff))
	for _, m := range c.Staff {
		if m.UserID == "" {
			return &ConfigError{Field: "staff", Message: "entry without user_id"}
		}
		if !m.Role.IsStaff() {
			return &ConfigError{
				Field:   "staff",
				Message: "user " + m.UserID + " references unknown role: " + string(m.Role),
			}
		}
		if seen[m.UserID] {
			return &ConfigError{Field: "staff", Message: "duplicate user " + m.UserID}
		}
		seen[m.UserID] = true
	}
	return nil
}

// RoleResolver resolves the platform role of a user
type RoleResolver interface {
	RoleOf(userID string) Role
}

// Directory resolves user roles from a JSON staff file. Users that are not
// listed are plain users. Safe for concurrent use.
type Directory struct {
	mu         sync.RWMutex
	configPath string
	roles      map[string]Role
	members    map[string]StaffMember
}

// NewDirectory creates a directory backed by configPath.
// An empty path or a missing file yields a directory with no staff.
func NewDirectory(configPath string) (*Directory, error) {
	d := &Directory{
		configPath: configPath,
		roles:      make(map[string]Role),
		members:    make(map[string]StaffMember),
	}

	if configPath == "" {
		log.Info().Msg("moderation: no staff directory configured, every actor is a plain user")
		return d, nil
	}

	if err := d.load(); err != nil {
		return nil, fmt.Errorf("failed to load staff directory: %w", err)
	}
	return d, nil
}

// NewStaticDirectory builds a directory from an in-memory staff list
func NewStaticDirectory(staff ...StaffMember) (*Directory, error) {
	cfg := DirectoryConfig{Staff: staff}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Directory{}
	d.apply(&cfg)
	return d, nil
}

func (d *Directory) load() error {
	data, err := os.ReadFile(d.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", d.configPath).Msg("moderation: staff directory not found, no staff loaded")
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg DirectoryConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	d.apply(&cfg)

	log.Info().
		Int("staff", len(cfg.Staff)).
		Str("path", d.configPath).
		Msg("moderation: staff directory loaded")
	return nil
}

func (d *Directory) apply(cfg *DirectoryConfig) {
	roles := make(map[string]Role, len(cfg.Staff))
	members := make(map[string]StaffMember, len(cfg.Staff))
	for _, m := range cfg.Staff {
		roles[m.UserID] = m.Role
		members[m.UserID] = m
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.roles = roles
	d.members = members
}

// Reload re-reads the staff file from disk
func (d *Directory) Reload() error {
	if d.configPath == "" {
		return nil
	}
	return d.load()
}

// RoleOf returns the role for userID, defaulting to RoleUser
func (d *Directory) RoleOf(userID string) Role {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if role, ok := d.roles[userID]; ok {
		return role
	}
	return RoleUser
}

// Actor builds an Actor for an authenticated user id
func (d *Directory) Actor(userID string) Actor {
	return Actor{ID: userID, Role: d.RoleOf(userID)}
}

// ListStaff returns a copy of the configured staff
func (d *Directory) ListStaff() []StaffMember {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]StaffMember, 0, len(d.members))
	for _, m := range d.members {
		out = append(out, m)
	}
	return out
}
