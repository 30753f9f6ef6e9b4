package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/deusflow/feedgen/internal/apiclient"
	"github.com/deusflow/feedgen/internal/news"
	"github.com/deusflow/feedgen/internal/retry"
)

func TestTelegramSink_Publish(t *testing.T) {
	var got sendMessage
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer srv.Close()

	sink := NewTelegramSink(apiclient.New(apiclient.Options{Retry: retry.RetryConfig{}}), "TOKEN", "@feeds")
	sink.baseURL = srv.URL
	items := []news.FeedItem{{
		Title:        "Inter & Milan, derby rinviato",
		Link:         []string{"https://a.it/derby?x=1&y=2"},
		SourceDomain: []string{"a.it", "b.it"},
	}}
	if err := sink.Publish(context.Background(), 12, "it", items); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("path = %q", path)
	}
	if got.ChatID != "@feeds" || got.ParseMode != "HTML" || !got.DisableWebPagePreview {
		t.Errorf("message = %+v", got)
	}
	for _, want := range []string{"Feed 12 · IT", `href="https://a.it/derby?x=1&amp;y=2"`, "Inter &amp; Milan", "a.it, b.it"} {
		if !strings.Contains(got.Text, want) {
			t.Errorf("text missing %q:\n%s", want, got.Text)
		}
	}
}

func TestTelegramSink_NotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	sink := NewTelegramSink(apiclient.New(apiclient.Options{}), "T", "1")
	sink.baseURL = srv.URL
	err := sink.Publish(context.Background(), 1, "en", []news.FeedItem{{Title: "x"}})
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("err = %v", err)
	}
	if err := sink.Publish(context.Background(), 1, "en", nil); err != nil {
		t.Errorf("empty feed: %v", err)
	}
}

func TestDigest_Truncates(t *testing.T) {
	items := make([]news.FeedItem, 60)
	for i := range items {
		items[i] = news.FeedItem{Title: strings.Repeat("titolo ", 15), SourceDomain: []string{"example.it"}}
	}
	text := Digest(3, "it", items)
	if n := len([]rune(text)); n > maxMessageRunes {
		t.Errorf("digest is %d runes", n)
	}
	if !strings.Contains(text, "more</i>") {
		t.Error("no overflow footer")
	}
}
