package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ErrUnknownPolicy is returned when an override names a policy that is not in the table.
var ErrUnknownPolicy = errors.New("unknown policy")

// Override adjusts one named policy. Zero values keep the table's setting.
type Override struct {
	Name                  string `toml:"name" validate:"required"`
	Strategy              string `toml:"strategy" validate:"omitempty,oneof=NetworkFirst CacheFirst"`
	MaxEntries            int    `toml:"max_entries" validate:"gte=0"`
	MaxAgeSeconds         int    `toml:"max_age_seconds" validate:"gte=0"`
	NetworkTimeoutSeconds int    `toml:"network_timeout_seconds" validate:"gte=0"`
}

type overrideFile struct {
	Policies []Override `toml:"policies" validate:"dive"`
}

// ParseOverrides reads [[policies]] tables from a TOML document.
func ParseOverrides(data []byte) ([]Override, error) {
	var file overrideFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse policy overrides: %w", err)
	}
	if err := validate.Struct(file); err != nil {
		return nil, fmt.Errorf("invalid policy overrides: %w", err)
	}
	return file.Policies, nil
}

// WithOverrides returns a copy of t with overrides applied. The result must
// still validate, so the navigation policy cannot be switched to CacheFirst.
func (t Table) WithOverrides(overrides []Override) (Table, error) {
	out := make(Table, len(t))
	copy(out, t)
	for _, o := range overrides {
		if err := validate.Struct(o); err != nil {
			return nil, fmt.Errorf("invalid override for %q: %w", o.Name, err)
		}
		idx := -1
		for i, p := range out {
			if p.Name == o.Name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPolicy, o.Name)
		}
		p := out[idx]
		if o.Strategy != "" {
			p.Strategy = Strategy(o.Strategy)
		}
		if o.MaxEntries > 0 {
			p.MaxEntries = o.MaxEntries
		}
		if o.MaxAgeSeconds > 0 {
			p.MaxAge = time.Duration(o.MaxAgeSeconds) * time.Second
		}
		if o.NetworkTimeoutSeconds > 0 {
			p.NetworkTimeout = time.Duration(o.NetworkTimeoutSeconds) * time.Second
		}
		out[idx] = p
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("apply overrides: %w", err)
	}
	return out, nil
}
