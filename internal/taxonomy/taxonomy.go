// Package taxonomy loads the per-locale category taxonomy and preferred source lists.
// The files are JSON; they are decoded with the YAML decoder, which accepts JSON and
// ignores unknown fields.
package taxonomy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/deusflow/feedgen/internal/logger"
)

// Category is one IAB category inside a cluster.
type Category struct {
	IABCode        string   `json:"iab_code" yaml:"iab_code"`
	Description    string   `json:"iab_description" yaml:"iab_description"`
	Keywords       []string `json:"iab_keywords" yaml:"iab_keywords"`
	Freshness      bool     `json:"freshness" yaml:"freshness"`
	TopSourcesOnly bool     `json:"top_sources_only" yaml:"top_sources_only"`
}

type Cluster struct {
	ID          int        `json:"cluster_id" yaml:"cluster_id"`
	Name        string     `json:"cluster_name" yaml:"cluster_name"`
	Description string     `json:"cluster_description" yaml:"cluster_description"`
	Icon        string     `json:"cluster_icon,omitempty" yaml:"cluster_icon"`
	Categories  []Category `json:"categories" yaml:"categories"`
}

// MustBeFresh reports whether any category of the cluster requires same-day news.
func (c Cluster) MustBeFresh() bool {
	for _, cat := range c.Categories {
		if cat.Freshness {
			return true
		}
	}
	return false
}

// Taxonomy is read-only after Load.
type Taxonomy struct {
	Clusters []Cluster `json:"clusters" yaml:"clusters"`

	byID       map[int]int
	categories map[string]Category
}

// New builds a taxonomy from clusters.
func New(clusters ...Cluster) *Taxonomy {
	t := &Taxonomy{Clusters: clusters}
	t.index()
	return t
}

func (t *Taxonomy) index() {
	t.byID = make(map[int]int, len(t.Clusters))
	t.categories = make(map[string]Category)
	for i, c := range t.Clusters {
		t.byID[c.ID] = i
		for _, cat := range c.Categories {
			if cat.IABCode != "" {
				t.categories[cat.IABCode] = cat
			}
		}
	}
}

func (t *Taxonomy) Cluster(id int) (Cluster, bool) {
	if t == nil {
		return Cluster{}, false
	}
	i, ok := t.byID[id]
	if !ok {
		return Cluster{}, false
	}
	return t.Clusters[i], true
}

func (t *Taxonomy) Category(code string) (Category, bool) {
	cat, ok := t.categories[code]
	return cat, ok
}

// Keywords returns the configured keywords of a category code.
func (t *Taxonomy) Keywords(code string) []string {
	return t.categories[code].Keywords
}

// CategoryKeywords maps every category code of a cluster to its keywords.
func (t *Taxonomy) CategoryKeywords(clusterID int) map[string][]string {
	c, ok := t.Cluster(clusterID)
	if !ok {
		return nil
	}
	out := make(map[string][]string, len(c.Categories))
	for _, cat := range c.Categories {
		out[cat.IABCode] = cat.Keywords
	}
	return out
}

// SourceCategory lists the preferred sites and RSS feeds of a category.
type SourceCategory struct {
	IABCode  string   `json:"iab_code" yaml:"iab_code"`
	Sites    []string `json:"sites" yaml:"sites"`
	RSSFeeds []string `json:"rss_feeds,omitempty" yaml:"rss_feeds"`
}

type TopSources struct {
	Categories     []SourceCategory `json:"categories" yaml:"categories"`
	BlockedDomains []string         `json:"blocked_domains" yaml:"blocked_domains"`

	byCode map[string]SourceCategory
}

func NewTopSources(categories []SourceCategory, blocked []string) *TopSources {
	s := &TopSources{Categories: categories, BlockedDomains: blocked}
	s.index()
	return s
}

func (s *TopSources) index() {
	s.byCode = make(map[string]SourceCategory, len(s.Categories))
	for _, c := range s.Categories {
		if c.IABCode != "" {
			s.byCode[c.IABCode] = c
		}
	}
}

// Sites returns the preferred sites of a category, nil when none are configured.
func (s *TopSources) Sites(code string) []string {
	if s == nil {
		return nil
	}
	return s.byCode[code].Sites
}

func (s *TopSources) RSSFeeds(code string) []string {
	if s == nil {
		return nil
	}
	return s.byCode[code].RSSFeeds
}

// TaxonomyPath is the location of the taxonomy file for locale under dir.
func TaxonomyPath(dir, locale string) string {
	return filepath.Join(dir, "iab_taxonomy_"+strings.ToLower(locale)+".json")
}

func TopSourcesPath(dir, locale string) string {
	return filepath.Join(dir, "top_sources_"+strings.ToLower(locale)+".json")
}

// Load reads the taxonomy of locale. A missing file yields an empty taxonomy.
func Load(dir, locale string) (*Taxonomy, error) {
	t := &Taxonomy{}
	if err := decodeFile(TaxonomyPath(dir, locale), t); err != nil {
		return nil, err
	}
	t.index()
	return t, nil
}

// LoadTopSources reads the preferred sources of locale. A missing file yields no sources.
func LoadTopSources(dir, locale string) (*TopSources, error) {
	s := &TopSources{}
	if err := decodeFile(TopSourcesPath(dir, locale), s); err != nil {
		return nil, err
	}
	s.index()
	return s, nil
}

func decodeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("config file not found", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid JSON in %s: %w", path, err)
	}
	return nil
}

// Catalog reads the taxonomy and top sources of a locale from a config directory.
type Catalog struct {
	Dir string
}

func (c Catalog) Load(locale string) (*Taxonomy, *TopSources, error) {
	tax, err := Load(c.Dir, locale)
	if err != nil {
		return nil, nil, err
	}
	sources, err := LoadTopSources(c.Dir, locale)
	if err != nil {
		return nil, nil, err
	}
	return tax, sources, nil
}
