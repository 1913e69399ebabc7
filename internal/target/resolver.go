package target

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Resolver turns a configured endpoint into a Target with a capability class.
type Resolver interface {
	Resolve(ctx context.Context, cfg Config) (*Target, error)
}

// hostHints maps well-known host fragments to capability classes.
// Order matters: the first matching fragment wins.
var hostHints = []struct {
	fragment string
	typ      Type
}{
	{"scihub.copernicus.eu", DataHub},
	{"colhub", DataHub},
	{"inthub", DataHub},
	{"dhus", DataHub},
	{"creodias", DIAS},
	{"onda-dias", DIAS},
	{"mundiwebservices", DIAS},
	{"sobloo", DIAS},
	{"wekeo", DIAS},
	{"dataspace.copernicus.eu", DIAS},
	{"eoda", ILS},
	{"archive", ILS},
}

// HostResolver resolves the class from the explicit type, falling back to
// host hints. It never performs network I/O.
type HostResolver struct{}

// Resolve implements Resolver.
func (HostResolver) Resolve(_ context.Context, cfg Config) (*Target, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	u, _ := url.Parse(cfg.URL)

	var (
		typ Type
		err error
	)
	if cfg.Type != "" {
		typ, err = ParseType(cfg.Type)
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", cfg.Name, err)
		}
	} else {
		typ, err = inferType(u)
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", cfg.Name, err)
		}
	}

	return &Target{
		Name: cfg.Name,
		URL:  u,
		Type: typ,
		Credentials: Credentials{
			Username: cfg.Username,
			Password: cfg.Password,
		},
		RateLimit: cfg.RateLimit,
	}, nil
}

func inferType(u *url.URL) (Type, error) {
	host := strings.ToLower(u.Hostname())
	for _, h := range hostHints {
		if strings.Contains(host, h.fragment) {
			return h.typ, nil
		}
	}
	return "", fmt.Errorf("no type configured and host %q is not recognised: %w", host, ErrUnresolvable)
}

// ResolveAll resolves every configured target, failing on the first
// unresolvable one.
func ResolveAll(ctx context.Context, r Resolver, cfgs []Config) ([]*Target, error) {
	if r == nil {
		r = HostResolver{}
	}
	targets := make([]*Target, 0, len(cfgs))
	seen := make(map[string]bool, len(cfgs))
	for _, c := range cfgs {
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate target name %q", c.Name)
		}
		seen[c.Name] = true
		t, err := r.Resolve(ctx, c)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}
