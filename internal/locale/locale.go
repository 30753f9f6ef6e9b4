// Package locale loads the locale-keyed word lists and prompt texts used across the pipeline.
// Matching helpers work on the union of every configured locale, so a page in any supported
// language is filtered the same way regardless of the run's locale.
package locale

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Fallback is used for unknown locale codes.
const Fallback = "EN"

type TimeUnits struct {
	Hours   []string `yaml:"hours"`
	Minutes []string `yaml:"minutes"`
	Seconds []string `yaml:"seconds"`
}

type Prompt struct {
	Role            string   `yaml:"role"`
	Task            string   `yaml:"task"`
	RulesHeader     string   `yaml:"rules_header"`
	Rules           []string `yaml:"rules"`
	SourcesFallback string   `yaml:"sources_fallback"`
}

type Table struct {
	Language      string    `yaml:"language"`
	QuerySuffix   string    `yaml:"query_suffix"`
	Stopwords     []string  `yaml:"stopwords"`
	TodayKeywords []string  `yaml:"today_keywords"`
	TimeUnits     TimeUnits `yaml:"time_units"`
	AgoWords      []string  `yaml:"ago_words"`
	TitleDenylist []string  `yaml:"title_denylist"`
	LinkDenylist  []string  `yaml:"link_denylist"`
	Prompt        Prompt    `yaml:"prompt"`
}

type Common struct {
	HeadlinePrefixes []string          `yaml:"headline_prefixes"`
	VideoPatterns    []string          `yaml:"video_patterns"`
	LivePatterns     []string          `yaml:"live_patterns"`
	AssetPatterns    []string          `yaml:"asset_patterns"`
	ArticleSuffixes  []string          `yaml:"article_suffixes"`
	HistoricalDays   int               `yaml:"historical_days"`
	HistoricalQuery  string            `yaml:"historical_query"`
	PlaceholderImage string            `yaml:"placeholder_image"`
	SummaryLanguages map[string]string `yaml:"summary_languages"`
}

// Tables is immutable after Load or Default returns it.
type Tables struct {
	Common  Common           `yaml:"common"`
	Locales map[string]Table `yaml:"locales"`

	codes         []string
	stopwords     map[string]struct{}
	todayKeywords []string
	titleDeny     []string
	linkDeny      []string
	timeRes       []*regexp.Regexp
	prefixRe      *regexp.Regexp
}

var (
	defaultOnce   sync.Once
	defaultTables *Tables
	defaultErr    error
)

// Builtin decodes the embedded tables once.
func Builtin() (*Tables, error) {
	defaultOnce.Do(func() {
		defaultTables, defaultErr = parse(defaultsYAML, nil)
	})
	if defaultErr != nil {
		return nil, fmt.Errorf("invalid built-in tables: %w", defaultErr)
	}
	return defaultTables, nil
}

// Default returns the built-in tables. It panics if they do not decode.
func Default() *Tables {
	t, err := Builtin()
	if err != nil {
		panic("locale: " + err.Error())
	}
	return t
}

// Load decodes the file at path over the built-in tables. An empty path returns the defaults.
func Load(path string) (*Tables, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locale tables: %w", err)
	}
	t, err := parse(defaultsYAML, data)
	if err != nil {
		return nil, fmt.Errorf("parse locale tables %s: %w", path, err)
	}
	return t, nil
}

func parse(base, overlay []byte) (*Tables, error) {
	t := &Tables{}
	if err := yaml.Unmarshal(base, t); err != nil {
		return nil, err
	}
	if len(overlay) > 0 {
		if err := yaml.Unmarshal(overlay, t); err != nil {
			return nil, err
		}
	}
	if len(t.Locales) == 0 {
		return nil, fmt.Errorf("no locales defined")
	}
	if err := t.prepare(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tables) prepare() error {
	t.codes = t.codes[:0]
	normalized := make(map[string]Table, len(t.Locales))
	for code, table := range t.Locales {
		normalized[strings.ToUpper(code)] = table
	}
	t.Locales = normalized
	for code := range t.Locales {
		t.codes = append(t.codes, code)
	}
	sort.Strings(t.codes)

	t.stopwords = make(map[string]struct{})
	var hours, minutes, seconds, ago []string
	for _, code := range t.codes {
		table := t.Locales[code]
		for _, w := range table.Stopwords {
			t.stopwords[strings.ToLower(w)] = struct{}{}
		}
		t.todayKeywords = appendLower(t.todayKeywords, table.TodayKeywords)
		t.titleDeny = appendLower(t.titleDeny, table.TitleDenylist)
		t.linkDeny = appendLower(t.linkDeny, table.LinkDenylist)
		hours = append(hours, table.TimeUnits.Hours...)
		minutes = append(minutes, table.TimeUnits.Minutes...)
		seconds = append(seconds, table.TimeUnits.Seconds...)
		ago = append(ago, table.AgoWords...)
	}

	t.timeRes = t.timeRes[:0]
	for _, units := range [][]string{hours, minutes, seconds} {
		if len(units) == 0 {
			continue
		}
		expr := `(\d+)\s*(` + strings.Join(units, "|") + `)`
		if len(ago) > 0 {
			expr += `\s*(` + strings.Join(quoteAll(ago), "|") + `)?`
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("time units: %w", err)
		}
		t.timeRes = append(t.timeRes, re)
	}

	if len(t.Common.HeadlinePrefixes) > 0 {
		expr := `(?i)^(` + strings.Join(quoteAll(t.Common.HeadlinePrefixes), "|") + `):\s*`
		re, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("headline prefixes: %w", err)
		}
		t.prefixRe = re
	}
	return nil
}

func appendLower(dst, src []string) []string {
	for _, s := range src {
		dst = append(dst, strings.ToLower(s))
	}
	return dst
}

func quoteAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = regexp.QuoteMeta(w)
	}
	return out
}

// Codes lists the configured locale codes in sorted order.
func (t *Tables) Codes() []string {
	return append([]string(nil), t.codes...)
}

// Has reports whether code (any case) is configured.
func (t *Tables) Has(code string) bool {
	_, ok := t.Locales[strings.ToUpper(code)]
	return ok
}

// Locale returns the table for code, falling back to English.
func (t *Tables) Locale(code string) Table {
	if table, ok := t.Locales[strings.ToUpper(code)]; ok {
		return table
	}
	return t.Locales[Fallback]
}

// IsStopword reports whether the lowercase word is a stopword in any locale.
func (t *Tables) IsStopword(word string) bool {
	_, ok := t.stopwords[word]
	return ok
}

// StripHeadlinePrefix removes a leading "video:", "foto:" style marker.
func (t *Tables) StripHeadlinePrefix(text string) string {
	if t.prefixRe == nil {
		return text
	}
	return t.prefixRe.ReplaceAllString(text, "")
}

// HasTodayKeyword reports whether the lowercase text contains a "today/now" keyword.
func (t *Tables) HasTodayKeyword(lower string) bool {
	return containsAny(lower, t.todayKeywords)
}

// HasRelativeTime reports whether the lowercase text reads like "3 ore fa" or "10 minutes ago".
func (t *Tables) HasRelativeTime(lower string) bool {
	for _, re := range t.timeRes {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// DeniedTitle returns the first title denylist phrase contained in the lowercase title.
func (t *Tables) DeniedTitle(lower string) (string, bool) {
	return firstContained(lower, t.titleDeny)
}

// DeniedLinkText returns the first link-text denylist phrase contained in the lowercase text.
func (t *Tables) DeniedLinkText(lower string) (string, bool) {
	return firstContained(lower, t.linkDeny)
}

// QuerySuffix is the locale's "latest news" phrase appended to search queries.
func (t *Tables) QuerySuffix(code string) string {
	return t.Locale(code).QuerySuffix
}

// HistoricalQuery builds the "last N days" query for a category description.
func (t *Tables) HistoricalQuery(description string) string {
	days := t.Common.HistoricalDays
	if days <= 0 {
		days = 3
	}
	return strings.NewReplacer(
		"{description}", description,
		"{days}", strconv.Itoa(days),
	).Replace(t.Common.HistoricalQuery)
}

// SummaryLanguage maps a lowercase language code to the name used in summary prompts.
// Unknown codes are returned unchanged.
func (t *Tables) SummaryLanguage(code string) string {
	code = strings.ToLower(code)
	if name, ok := t.Common.SummaryLanguages[code]; ok {
		return name
	}
	return code
}

// SearchPrompt renders the locale's search system prompt.
func (t *Tables) SearchPrompt(code string, maxResults int, description string, sources []string) string {
	p := t.Locale(code).Prompt

	srcText := p.SourcesFallback
	if len(sources) > 0 {
		srcText = strings.Join(sources, ", ")
	}
	r := strings.NewReplacer(
		"{max_results}", strconv.Itoa(maxResults),
		"{description}", description,
		"{sources}", srcText,
	)

	var b strings.Builder
	b.WriteString(r.Replace(p.Role))
	b.WriteString(" ")
	b.WriteString(r.Replace(p.Task))
	b.WriteString("\n\n")
	b.WriteString(p.RulesHeader)
	for i, rule := range p.Rules {
		b.WriteString("\n")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(r.Replace(rule))
	}
	return b.String()
}

func containsAny(s string, subs []string) bool {
	_, ok := firstContained(s, subs)
	return ok
}

func firstContained(s string, subs []string) (string, bool) {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return sub, true
		}
	}
	return "", false
}
