package spen

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Feature is an optional capability the device may report.
type Feature uint8

const (
	FeatureButton Feature = iota
	FeatureAirMotion
)

// Features lists every known feature.
var Features = []Feature{FeatureButton, FeatureAirMotion}

// String returns the feature's wire identifier.
func (f Feature) String() string {
	switch f {
	case FeatureButton:
		return "button"
	case FeatureAirMotion:
		return "air_motion"
	default:
		return "unknown"
	}
}

// FeatureProbe queries the platform capability list once and answers feature checks
// from the cached result. A failed query is cached as "nothing supported".
type FeatureProbe struct {
	query  CapabilityQuery
	logger *slog.Logger

	once      sync.Once
	supported map[string]struct{}
}

// NewFeatureProbe creates a probe backed by query. A nil logger uses slog.Default().
func NewFeatureProbe(query CapabilityQuery, logger *slog.Logger) *FeatureProbe {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeatureProbe{query: query, logger: logger}
}

func (p *FeatureProbe) load() {
	p.once.Do(func() {
		p.supported = map[string]struct{}{}
		if p.query == nil {
			p.logger.Warn("capability query unavailable")
			return
		}
		raw, err := p.query.QueryCapabilities()
		if err != nil {
			p.logger.Warn("capability query failed", "error", err)
			return
		}
		for _, id := range strings.Split(raw, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				p.supported[id] = struct{}{}
			}
		}
		p.logger.Debug("capabilities loaded", "raw", raw)
	})
}

// IsEnabled reports whether f is in the cached capability list.
func (p *FeatureProbe) IsEnabled(f Feature) bool {
	p.load()
	_, ok := p.supported[f.String()]
	return ok
}

// Supported returns every cached capability identifier, sorted.
func (p *FeatureProbe) Supported() []string {
	p.load()
	ids := make([]string, 0, len(p.supported))
	for id := range p.supported {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
