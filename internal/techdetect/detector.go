// Package techdetect identifies web technologies from response headers and
// rendered HTML using wappalyzergo. It supplements the crawler's own CMS and
// framework heuristics with the full wappalyzer signature set.
package techdetect

import (
	"net/http"
	"sort"
	"sync"

	wappalyzer "github.com/projectdiscovery/wappalyzergo"
	"github.com/rs/zerolog/log"
)

// Result contains the detected technologies for a page
type Result struct {
	// Technologies maps technology name to its categories (e.g., {"WordPress": ["CMS"], "Cloudflare": ["CDN"]})
	Technologies map[string][]string `json:"technologies"`
}

// Names returns the detected technology names in sorted order
func (r *Result) Names() []string {
	names := make([]string, 0, len(r.Technologies))
	for name := range r.Technologies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Detector provides technology detection capabilities
type Detector struct {
	client *wappalyzer.Wappalyze
	mu     sync.RWMutex
}

// categoryNames maps wappalyzer category IDs to human-readable names
var categoryNames map[int]string
var categoryNamesOnce sync.Once

// New creates a new technology detector
func New() (*Detector, error) {
	client, err := wappalyzer.New()
	if err != nil {
		return nil, err
	}

	// Initialise category names mapping once
	categoryNamesOnce.Do(func() {
		categoryNames = make(map[int]string)
		cats := wappalyzer.GetCategoriesMapping()
		for id, cat := range cats {
			categoryNames[id] = cat.Name
		}
	})

	return &Detector{
		client: client,
	}, nil
}

// Detect identifies technologies from response headers and body
func (d *Detector) Detect(headers http.Header, body []byte) *Result {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := &Result{
		Technologies: make(map[string][]string),
	}

	fingerprints := d.client.FingerprintWithCats(headers, body)

	for tech, catInfo := range fingerprints {
		categories := make([]string, 0, len(catInfo.Cats))
		for _, catID := range catInfo.Cats {
			if name, ok := categoryNames[catID]; ok {
				categories = append(categories, name)
			}
		}
		result.Technologies[tech] = categories
	}

	log.Debug().
		Int("tech_count", len(result.Technologies)).
		Interface("technologies", result.Technologies).
		Msg("Technology detection completed")

	return result
}
