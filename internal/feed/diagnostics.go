package feed

import (
	"fmt"
	"time"

	"github.com/deusflow/feedgen/internal/citations"
	"github.com/deusflow/feedgen/internal/news"
)

const discardSamples = 3

type SearchDiag struct {
	IABCode    string            `json:"iab_code"`
	Historical bool              `json:"historical"`
	Result     *citations.Result `json:"result"`
}

type ExtractionDiag struct {
	URL    string          `json:"url"`
	Parent bool            `json:"parent"`
	Items  []news.NewsItem `json:"items"`
}

type SelectionDiag struct {
	Pass       int    `json:"pass"`
	Topic      string `json:"topic"`
	Candidates int    `json:"candidates"`
	Validated  int    `json:"validated"`
	Summarized bool   `json:"summarized"`
}

// Diagnostics records what each stage of a run saw and decided. Stages write to it
// from the run goroutine only.
type Diagnostics struct {
	RunID              string    `json:"run_id"`
	ClusterID          int       `json:"cluster_id"`
	ClusterName        string    `json:"cluster_name"`
	ClusterDescription string    `json:"cluster_description"`
	Locale             string    `json:"locale"`
	Geo                string    `json:"geo"`
	Started            time.Time `json:"started"`

	Searches          []SearchDiag `json:"searches"`
	TopSourcesDropped int          `json:"top_sources_dropped"`
	RawCitations      int          `json:"raw_citations"`
	Citations         []string     `json:"citations"`

	Extractions []ExtractionDiag `json:"extractions"`
	RawItems    int              `json:"raw_items"`
	Items       int              `json:"items"`

	ValidItems int            `json:"valid_items"`
	Clusters   []news.Cluster `json:"clusters"`

	Selections      []SelectionDiag            `json:"selections"`
	Discards        map[news.DiscardReason]int `json:"discards"`
	DiscardSamples  []news.DiscardRecord       `json:"discard_samples"`
	SummaryFailures int                        `json:"summary_failures"`

	Feed      []news.FeedItem `json:"feed"`
	StoppedAt Step            `json:"stopped_at,omitempty"`
	Notes     []string        `json:"notes,omitempty"`
	Elapsed   time.Duration   `json:"elapsed"`
}

func newDiagnostics(rc *RunContext, req Request) *Diagnostics {
	return &Diagnostics{
		RunID:              rc.ID,
		ClusterID:          req.ClusterID,
		ClusterName:        rc.Cluster.Name,
		ClusterDescription: rc.Cluster.Description,
		Locale:             rc.Locale,
		Geo:                rc.Geo,
		Started:            rc.Started,
		Discards: map[news.DiscardReason]int{
			news.DiscardLength:  0,
			news.DiscardNoDate:  0,
			news.DiscardOldDate: 0,
		},
	}
}

func (d *Diagnostics) note(format string, args ...any) {
	d.Notes = append(d.Notes, fmt.Sprintf(format, args...))
}

// recordDiscards counts rejected articles by reason and keeps the first few as samples.
func (d *Diagnostics) recordDiscards(records []news.DiscardRecord) {
	for _, r := range records {
		d.Discards[r.Reason]++
		if len(d.DiscardSamples) < discardSamples {
			d.DiscardSamples = append(d.DiscardSamples, r)
		}
	}
}

// Discarded is the total number of rejected articles.
func (d *Diagnostics) Discarded() int {
	n := 0
	for _, c := range d.Discards {
		n += c
	}
	return n
}
