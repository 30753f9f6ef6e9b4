package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/deusflow/feedgen/internal/logger"
	"github.com/deusflow/feedgen/internal/news"
)

const DefaultOutputDir = "local_output"

// FeedFileName is the artifact and object name of a feed, e.g. feed12_it.json.
func FeedFileName(clusterID int, locale string) string {
	return fmt.Sprintf("feed%d_%s.json", clusterID, strings.ToLower(locale))
}

func ClustersFileName(clusterID int, locale string) string {
	return fmt.Sprintf("clusters_%d_%s.json", clusterID, strings.ToLower(locale))
}

func DebugFileName(clusterID int) string {
	return fmt.Sprintf("debug+%d.md", clusterID)
}

// ArtifactWriter stores run outputs as files in one directory.
type ArtifactWriter struct {
	dir string
	mu  sync.Mutex
}

// NewArtifactWriter creates a writer for dir. The directory is created on first write.
func NewArtifactWriter(dir string) *ArtifactWriter {
	if dir == "" {
		dir = DefaultOutputDir
	}
	return &ArtifactWriter{dir: dir}
}

func (w *ArtifactWriter) Dir() string {
	return w.dir
}

// WriteFeed saves the feed items as indented JSON and returns the file path.
func (w *ArtifactWriter) WriteFeed(clusterID int, locale string, feed []news.FeedItem) (string, error) {
	if feed == nil {
		feed = []news.FeedItem{}
	}
	return w.writeJSON(FeedFileName(clusterID, locale), feed)
}

func (w *ArtifactWriter) WriteClusters(clusterID int, locale string, clusters []news.Cluster) (string, error) {
	if clusters == nil {
		clusters = []news.Cluster{}
	}
	return w.writeJSON(ClustersFileName(clusterID, locale), clusters)
}

// WriteDebug saves a rendered debug report.
func (w *ArtifactWriter) WriteDebug(clusterID int, report string) (string, error) {
	return w.write(DebugFileName(clusterID), []byte(report))
}

func (w *ArtifactWriter) writeJSON(name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return w.write(name, data)
}

func (w *ArtifactWriter) write(name string, data []byte) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	logger.Debug("artifact written", "path", path, "bytes", len(data))
	return path, nil
}
