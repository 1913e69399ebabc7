package target

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ppiankov/cdabench/internal/ratelimit"
)

// Type is the capability class of a benchmarked endpoint.
type Type string

const (
	// DataHub is a full archive with online download (Copernicus Open Access Hub family).
	DataHub Type = "DATAHUB"
	// DIAS is a Data and Information Access Service with online download.
	DIAS Type = "DIAS"
	// ILS is a long-term archive: catalogue plus offline media.
	ILS Type = "ILS"
	// ThirdParty is a catalogue-only endpoint.
	ThirdParty Type = "THIRDPARTY"
)

// ErrUnresolvable is returned when a target's capability class cannot be determined.
var ErrUnresolvable = errors.New("capability class unresolvable")

// Types returns all known capability classes in declaration order.
func Types() []Type {
	return []Type{DataHub, DIAS, ILS, ThirdParty}
}

// ParseType parses a capability class name (case-insensitive).
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Types() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown target type %q: %w", s, ErrUnresolvable)
}

// Credentials holds optional HTTP basic auth credentials.
type Credentials struct {
	Username string
	Password string
}

// Target is a resolved benchmark endpoint. It is read-only once resolved.
type Target struct {
	Name        string
	URL         *url.URL
	Type        Type
	Credentials Credentials
	RateLimit   ratelimit.Limit
}

// Host returns the endpoint host, used as the report hostname.
func (t *Target) Host() string {
	if t == nil || t.URL == nil {
		return ""
	}
	return t.URL.Host
}

// String returns "name (TYPE)".
func (t *Target) String() string {
	return fmt.Sprintf("%s (%s)", t.Name, t.Type)
}

// Config is the YAML form of one configured target.
type Config struct {
	Name      string          `yaml:"name"`
	URL       string          `yaml:"url"`
	Type      string          `yaml:"type,omitempty"`
	Username  string          `yaml:"username,omitempty"`
	Password  string          `yaml:"password,omitempty"`
	RateLimit ratelimit.Limit `yaml:"rate_limit,omitempty"`
}

// Validate checks the fields that do not depend on capability resolution.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("target name is required")
	}
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("target %q: url is required", c.Name)
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("target %q: invalid url: %w", c.Name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("target %q: url scheme must be http or https, got %q", c.Name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("target %q: url has no host", c.Name)
	}
	return nil
}
