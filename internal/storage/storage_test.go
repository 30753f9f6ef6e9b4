package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/deusflow/feedgen/internal/news"
)

func TestArtifactWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w := NewArtifactWriter(dir)

	feed := []news.FeedItem{{Title: "Manovra", Link: []string{"https://a.it/1"}, ClusterSize: 1}}
	path, err := w.WriteFeed(12, "IT", feed)
	if err != nil {
		t.Fatalf("WriteFeed: %v", err)
	}
	if filepath.Base(path) != "feed12_it.json" {
		t.Errorf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got []news.FeedItem
	if err := json.Unmarshal(data, &got); err != nil || len(got) != 1 || got[0].Title != "Manovra" {
		t.Errorf("feed file = %s (%v)", data, err)
	}

	path, err = w.WriteClusters(12, "EN", nil)
	if err != nil {
		t.Fatalf("WriteClusters: %v", err)
	}
	if data, _ := os.ReadFile(path); string(data) != "[]" {
		t.Errorf("clusters file = %q", data)
	}

	path, err = w.WriteDebug(12, "# Debug Log")
	if err != nil {
		t.Fatalf("WriteDebug: %v", err)
	}
	if filepath.Base(path) != "debug+12.md" {
		t.Errorf("debug path = %s", path)
	}
}

func TestParseDestination(t *testing.T) {
	tests := []struct {
		dest, bucket, prefix string
		wantErr              bool
	}{
		{dest: "s3://feeds/daily", bucket: "feeds", prefix: "daily/"},
		{dest: "s3://feeds/daily/", bucket: "feeds", prefix: "daily/"},
		{dest: "s3://feeds", bucket: "feeds"},
		{dest: "feeds-bucket", bucket: "feeds-bucket"},
		{dest: "", wantErr: true},
		{dest: "s3:///nobucket", wantErr: true},
	}
	for _, tt := range tests {
		bucket, prefix, err := ParseDestination(tt.dest)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: err = %v", tt.dest, err)
			continue
		}
		if bucket != tt.bucket || prefix != tt.prefix {
			t.Errorf("%q: got %q %q", tt.dest, bucket, prefix)
		}
	}
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestUploadFeed(t *testing.T) {
	put := &fakePutter{}
	u := NewS3UploaderWithClient(put)

	uri, err := u.UploadFeed(context.Background(), "s3://feeds/prod", 3, "FR", []news.FeedItem{{Title: "x"}})
	if err != nil {
		t.Fatalf("UploadFeed: %v", err)
	}
	if uri != "s3://feeds/prod/feed3_fr.json" {
		t.Errorf("uri = %s", uri)
	}
	if aws.ToString(put.input.Bucket) != "feeds" || aws.ToString(put.input.Key) != "prod/feed3_fr.json" {
		t.Errorf("input = %s %s", aws.ToString(put.input.Bucket), aws.ToString(put.input.Key))
	}
	if aws.ToString(put.input.ContentType) != "application/json" {
		t.Errorf("content type = %s", aws.ToString(put.input.ContentType))
	}
	var items []news.FeedItem
	if err := json.Unmarshal(put.body, &items); err != nil || len(items) != 1 {
		t.Errorf("body = %s", put.body)
	}

	put.err = errors.New("access denied")
	if _, err := u.UploadFeed(context.Background(), "feeds", 3, "FR", nil); err == nil {
		t.Error("expected upload error")
	}
}
