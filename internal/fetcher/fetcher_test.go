package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetch_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != BotUserAgent {
			t.Errorf("user agent = %q", r.Header.Get("User-Agent"))
		}
		fmt.Fprint(w, "<html>hi</html>")
	}))
	defer srv.Close()

	page := New(Options{UserAgent: BotUserAgent}).Fetch(context.Background(), srv.URL)
	if !page.OK() {
		t.Fatalf("expected ok page, got %+v", page)
	}
	if string(page.Body) != "<html>hi</html>" {
		t.Errorf("body = %q", page.Body)
	}
}

func TestFetch_NonOKIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "missing")
	}))
	defer srv.Close()

	page := New(Options{}).Fetch(context.Background(), srv.URL)
	if page.OK() {
		t.Fatal("expected not ok")
	}
	if page.StatusCode != http.StatusNotFound || page.Body != nil {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestFetch_TimeoutIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	page := New(Options{Timeout: 20 * time.Millisecond}).Fetch(context.Background(), srv.URL)
	if page.OK() || page.Err == nil {
		t.Fatalf("expected timeout failure, got %+v", page)
	}
}

func TestFetch_BadURL(t *testing.T) {
	page := New(Options{}).Fetch(context.Background(), "://nope")
	if page.OK() || page.Err == nil {
		t.Fatal("expected failure for malformed url")
	}
}

func TestFetch_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "0123456789")
	}))
	defer srv.Close()

	page := New(Options{MaxBytes: 4}).Fetch(context.Background(), srv.URL)
	if string(page.Body) != "0123" {
		t.Errorf("body = %q, want truncated", page.Body)
	}
}

type countingSource struct {
	calls int32
}

func (c *countingSource) Fetch(ctx context.Context, url string) Page {
	atomic.AddInt32(&c.calls, 1)
	time.Sleep(5 * time.Millisecond)
	return Page{URL: url, StatusCode: http.StatusOK, Body: []byte(url)}
}

func TestMemo_SharesFetches(t *testing.T) {
	src := &countingSource{}
	memo := NewMemo(src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p := memo.Fetch(context.Background(), "https://a.example/x"); string(p.Body) != "https://a.example/x" {
				t.Errorf("unexpected body %q", p.Body)
			}
		}()
	}
	wg.Wait()
	memo.Fetch(context.Background(), "https://a.example/x")
	memo.Fetch(context.Background(), "https://a.example/y")

	if got := atomic.LoadInt32(&src.calls); got != 2 {
		t.Errorf("expected 2 underlying fetches, got %d", got)
	}
	if memo.Len() != 2 {
		t.Errorf("memo len = %d", memo.Len())
	}
}
