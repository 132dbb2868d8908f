package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/frontcache/frontcache/internal/config"
)

// DefaultRuleName labels requests that matched no configured prefix.
const DefaultRuleName = "default"

// PageRoute is the resolved caching policy for a request path.
type PageRoute struct {
	// Name is the matched prefix, or DefaultRuleName.
	Name string
	// TTL is the freshness window handed to the page cache on lookup.
	TTL time.Duration
	// Bypass disables full-page caching for the prefix.
	Bypass bool
}

// RuleSet maps request paths to PageRoutes by longest matching prefix.
type RuleSet struct {
	routes   []*PageRoute
	fallback *PageRoute
}

// NewRuleSet builds the rule set from config. Build it once at startup and share it.
func NewRuleSet(cfg *config.Config) (*RuleSet, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	set := &RuleSet{
		fallback: &PageRoute{Name: DefaultRuleName, TTL: cfg.Global.DefaultTTL.DurationValue()},
	}

	seen := make(map[string]struct{}, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		prefix := normalizePrefix(rule.Prefix)
		if prefix == "" {
			return nil, fmt.Errorf("invalid rule prefix %q", rule.Prefix)
		}
		if _, exists := seen[prefix]; exists {
			return nil, fmt.Errorf("duplicate rule prefix %s", prefix)
		}
		seen[prefix] = struct{}{}

		set.routes = append(set.routes, &PageRoute{
			Name:   prefix,
			TTL:    cfg.EffectiveTTL(rule),
			Bypass: rule.Bypass,
		})
	}

	sort.SliceStable(set.routes, func(i, j int) bool {
		return len(set.routes[i].Name) > len(set.routes[j].Name)
	})
	return set, nil
}

// Lookup returns the route for path; unmatched paths get the default route.
func (r *RuleSet) Lookup(path string) *PageRoute {
	if r == nil {
		return nil
	}
	if path == "" {
		path = "/"
	}
	for _, route := range r.routes {
		if matchesPrefix(path, route.Name) {
			return route
		}
	}
	return r.fallback
}

// List returns copies of the configured routes, longest prefix first.
func (r *RuleSet) List() []PageRoute {
	if r == nil || len(r.routes) == 0 {
		return nil
	}
	result := make([]PageRoute, len(r.routes))
	for i, route := range r.routes {
		result[i] = *route
	}
	return result
}

// matchesPrefix matches whole path segments so /blog does not claim /blogger.
func matchesPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if !strings.HasPrefix(prefix, "/") {
		return ""
	}
	if prefix != "/" {
		prefix = strings.TrimRight(prefix, "/")
		if prefix == "" {
			prefix = "/"
		}
	}
	return prefix
}
