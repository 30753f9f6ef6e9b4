package summarizer

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/deusflow/feedgen/internal/locale"
	"github.com/deusflow/feedgen/internal/taxonomy"
)

const systemTemplate = `Perform a summary of the sources provided, they are different articles on the same topic. The output must be a new article that doesn't cite the source articles, please discard possible unrelated content.
Output ONLY a valid JSON with these fields: title, subtitle, summary, products, brands, keywords.
title: a concise title for the article
subtitle: a descriptive subtitle
summary: return around {char_size} chars organized in 2 sections using <section> tags. Each section must contain a title in a <p class="title"> tag followed by content paragraphs in <p> tags. Brands and products must be in bold using <strong> tags. Structure example: <section><p class="title">Section Title</p><p>Content with <strong>Brand</strong> and <strong>Product</strong>...</p></section>. Add citations to the source articles in the format: [id ] where id is the id of the source article, specify only one citation per section.
products: an array [] with an item for every product present in summary.
brands: an array [] with an item for every brand present in summary
keywords: a JSON object containing relevance scores (1-100) for each of the following category IDs: {category_ids}. Evaluate how relevant each category is to the summary content based on these category definitions: {iab_keywords}. Higher scores indicate greater relevance to the summary content. Output format example: {"381": 85, "406": 45, "466": 90, "550": 20}
All text generated must be in {lang}.`

// ClusterSource finds the categories a summary is scored against.
type ClusterSource interface {
	Cluster(id int) (taxonomy.Cluster, bool)
}

// SystemPrompt renders the summary instructions for a cluster in the named language.
func SystemPrompt(language string, cluster taxonomy.Cluster) string {
	codes := make([]string, len(cluster.Categories))
	for i, c := range cluster.Categories {
		codes[i] = c.IABCode
	}
	return strings.NewReplacer(
		"{char_size}", strconv.Itoa(CharSize),
		"{lang}", language,
		"{category_ids}", strings.Join(codes, ","),
		"{iab_keywords}", categoryDefinitions(cluster),
	).Replace(systemTemplate)
}

// categoryDefinitions renders {"code": ["kw", ...], ...} in category order.
func categoryDefinitions(cluster taxonomy.Cluster) string {
	var b strings.Builder
	b.WriteString("{")
	for i, c := range cluster.Categories {
		if i > 0 {
			b.WriteString(", ")
		}
		code, _ := json.Marshal(c.IABCode)
		kws := c.Keywords
		if kws == nil {
			kws = []string{}
		}
		list, _ := json.Marshal(kws)
		b.Write(code)
		b.WriteString(": ")
		b.WriteString(strings.ReplaceAll(string(list), `","`, `", "`))
	}
	b.WriteString("}")
	return b.String()
}

// LanguageName maps a request language code to the name used in the prompt.
func LanguageName(tables *locale.Tables, code string) string {
	if code == "" {
		code = DefaultLanguage
	}
	if tables == nil {
		tables = locale.Default()
	}
	return tables.SummaryLanguage(code)
}

// UserMessage is the JSON list of numbered contents.
func UserMessage(contents []Content) (string, error) {
	if contents == nil {
		contents = []Content{}
	}
	data, err := json.Marshal(contents)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
