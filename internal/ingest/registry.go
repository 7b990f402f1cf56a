package ingest

import (
	"embed"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Registry holds the declarative configuration for every crawled source.
// Adding a source of an existing shape is a YAML change, not a code change.
type Registry struct {
	Sources []SourceConfig `yaml:"sources"`
}

// SourceConfig describes one external source: who the funder is, which
// strategy fetches it, and the selector table the strategy needs.
type SourceConfig struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Funder     string   `yaml:"funder"`
	FunderType string   `yaml:"funder_type"`
	Strategy   string   `yaml:"strategy"` // html_list, wordpress, open_funds
	BaseURL    string   `yaml:"base_url"`
	Local      bool     `yaml:"local,omitempty"` // geographically restricted by default
	Sectors    []string `yaml:"sectors,omitempty"`
	MaxPages   int      `yaml:"max_pages,omitempty"`

	Selectors  SelectorConfig   `yaml:"selectors,omitempty"`
	Pagination PaginationConfig `yaml:"pagination,omitempty"`
	Detail     DetailConfig     `yaml:"detail,omitempty"`
}

// SelectorConfig drives the generic HTML list adapter. Section/OpenLabels
// let a source that mixes "Open funds" and "Recently closed" lists on one
// page restrict extraction to the open section.
type SelectorConfig struct {
	Section        string   `yaml:"section,omitempty"`
	SectionHeading string   `yaml:"section_heading,omitempty"`
	OpenLabels     []string `yaml:"open_labels,omitempty"`
	Container      string   `yaml:"container"`
	Title          string   `yaml:"title"`
	Link           string   `yaml:"link,omitempty"`
	LinkAttr       string   `yaml:"link_attr,omitempty"`
	Summary        string   `yaml:"summary,omitempty"`
	Deadline       string   `yaml:"deadline,omitempty"`
	Amount         string   `yaml:"amount,omitempty"`
}

type PaginationConfig struct {
	Next string `yaml:"next,omitempty"` // CSS selector for the next-page link
}

// DetailConfig enables per-item detail page enrichment.
type DetailConfig struct {
	Enabled     bool                 `yaml:"enabled"`
	Selectors   DetailSelectorConfig `yaml:"selectors,omitempty"`
	GuidancePDF bool                 `yaml:"guidance_pdf,omitempty"` // scan linked guidance PDFs for deadlines
}

type DetailSelectorConfig struct {
	Description string `yaml:"description,omitempty"`
	Deadline    string `yaml:"deadline,omitempty"`
	Amount      string `yaml:"amount,omitempty"`
	Eligibility string `yaml:"eligibility,omitempty"`
	Locations   string `yaml:"locations,omitempty"`
}

// LoadRegistry reads the embedded sources.yaml, expanding ${VAR} references
// so API keys can stay out of the file.
func LoadRegistry() (*Registry, error) {
	data, err := sourcesYAML.ReadFile("config/sources.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded sources.yaml: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("parsing sources.yaml: %w", err)
	}

	seen := make(map[string]bool, len(reg.Sources))
	for _, src := range reg.Sources {
		if src.ID == "" {
			return nil, fmt.Errorf("source with empty id in sources.yaml")
		}
		if seen[src.ID] {
			return nil, fmt.Errorf("duplicate source id %q in sources.yaml", src.ID)
		}
		seen[src.ID] = true
	}

	return &reg, nil
}

// BuildAdapters instantiates one SourceAdapter per configured source.
func BuildAdapters(reg *Registry, fetcher Fetcher, timeout time.Duration, log *zap.Logger) ([]SourceAdapter, error) {
	adapters := make([]SourceAdapter, 0, len(reg.Sources))
	for _, src := range reg.Sources {
		switch src.Strategy {
		case "html_list":
			adapters = append(adapters, newHTMLListAdapter(src, fetcher, timeout, log))
		case "wordpress":
			adapters = append(adapters, newWordPressAdapter(src, fetcher, log))
		case "open_funds":
			adapters = append(adapters, newOpenFundsAdapter(src, fetcher, log))
		default:
			return nil, fmt.Errorf("source %q: unknown strategy %q", src.ID, src.Strategy)
		}
	}
	return adapters, nil
}
