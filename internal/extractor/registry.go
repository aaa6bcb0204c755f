package extractor

import (
	"log/slog"
	"net/url"
	"strings"
	"sync"
)

const GenericSource = "Generic"

// Source is one registry entry. HostMatch is matched as a case-insensitive
// substring of the URL host.
type Source struct {
	ID        string
	HostMatch string
	Extractor Extractor
	SearchURL func(query string) string
}

// Registry resolves URLs to extractors. Entries are matched in registration
// order, so earlier entries win.
type Registry struct {
	mu       sync.RWMutex
	sources  []Source
	fallback Extractor
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		fallback: Noop{},
		logger:   logger.With("component", "registry"),
	}
}

func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.HostMatch = strings.ToLower(s.HostMatch)
	r.sources = append(r.sources, s)
	r.logger.Debug("registered source", "source", s.ID, "host_match", s.HostMatch)
}

// Resolve returns the extractor for url, or the no-op extractor. Never nil.
func (r *Registry) Resolve(rawURL string) Extractor {
	if s, ok := r.match(rawURL); ok {
		return s.Extractor
	}
	return r.fallback
}

// SourceFor returns the source id for url, GenericSource when none matches.
func (r *Registry) SourceFor(rawURL string) string {
	if s, ok := r.match(rawURL); ok {
		return s.ID
	}
	return GenericSource
}

func (r *Registry) Sources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

func (r *Registry) Lookup(id string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sources {
		if strings.EqualFold(s.ID, id) {
			return s, true
		}
	}
	return Source{}, false
}

func (r *Registry) match(rawURL string) (Source, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return Source{}, false
	}
	host := strings.ToLower(u.Host)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sources {
		if s.HostMatch != "" && strings.Contains(host, s.HostMatch) {
			return s, true
		}
	}
	return Source{}, false
}
