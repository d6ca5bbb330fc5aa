package content

import (
	"embed"
	"encoding/json"
	"io/fs"
)

//go:embed sampledata/*.json
var sampleFS embed.FS

// SampleData returns the bundled sample datasets
func SampleData() fs.FS {
	return sampleFS
}

// loadSamples reads the full sample dataset of a domain. A missing or
// malformed file yields an empty list and is logged.
func (s *Service[T]) loadSamples() []T {
	raw, err := fs.ReadFile(s.opts.Samples, s.domain.SampleFile)
	if err != nil {
		s.log.Error().Err(err).Str("domain", s.domain.Name).Msg("read sample data")
		return []T{}
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		s.log.Error().Err(err).Str("domain", s.domain.Name).Msg("malformed sample data")
		return []T{}
	}
	if items == nil {
		items = []T{}
	}
	return items
}

// filterByLocation keeps items shown at loc or everywhere, preserving order.
// An empty loc keeps everything.
func filterByLocation[T Record](items []T, loc Location) []T {
	if loc == "" {
		return items
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if l := it.Location(); l == loc || l == Both {
			out = append(out, it)
		}
	}
	return out
}
