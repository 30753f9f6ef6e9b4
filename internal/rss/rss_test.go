package rss

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const feedXML = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Finanza</title>
<item><title>Uno</title><link>https://news.example.com/a.html</link></item>
<item><title>Due</title><link>https://news.example.com/b.html</link></item>
<item><title>Senza link</title></item>
<item><title>Tre</title><link>https://news.example.com/c.html</link></item>
</channel></rss>`

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed.xml" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feedXML)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReader_Links(t *testing.T) {
	srv := feedServer(t)
	r := NewReader(srv.Client(), "test-agent", 0)

	got := r.Links(context.Background(), srv.URL+"/feed.xml", 2)
	want := []string{"https://news.example.com/a.html", "https://news.example.com/b.html"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("links = %v", got)
	}
	if all := r.Links(context.Background(), srv.URL+"/feed.xml", 0); len(all) != 3 {
		t.Errorf("unlimited links = %v", all)
	}
}

func TestReader_CollectLinksSkipsBrokenFeeds(t *testing.T) {
	srv := feedServer(t)
	r := NewReader(srv.Client(), "", 0)

	got := r.CollectLinks(context.Background(), []string{srv.URL + "/missing.xml", srv.URL + "/feed.xml", srv.URL + "/feed.xml"}, 5)
	if len(got) != 3 {
		t.Errorf("expected 3 distinct links, got %v", got)
	}
}

func TestLoadFeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.yaml")
	body := "feeds:\n  - https://shared.example.com/rss\ncategories:\n  IAB13:\n    - https://fin.example.com/rss\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFeeds(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"https://fin.example.com/rss", "https://shared.example.com/rss"}
	if got := cfg.For("IAB13"); !reflect.DeepEqual(got, want) {
		t.Errorf("For(IAB13) = %v", got)
	}
	if got := cfg.For("IAB1"); !reflect.DeepEqual(got, []string{"https://shared.example.com/rss"}) {
		t.Errorf("For(IAB1) = %v", got)
	}

	empty, err := LoadFeeds("")
	if err != nil || len(empty.For("IAB13")) != 0 {
		t.Errorf("empty path = %v, %v", empty, err)
	}
	var nilCfg *FeedsConfig
	if nilCfg.For("x") != nil {
		t.Error("nil config should have no feeds")
	}
}
