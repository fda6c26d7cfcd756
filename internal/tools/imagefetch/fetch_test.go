package imagefetch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExecuteFetchesImage(t *testing.T) {
	payload := []byte("\x89PNG\r\n\x1a\nfakepixels")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload)
	}))
	defer srv.Close()

	tool := New(AllowPrivateHosts())
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"url":"`+srv.URL+`/badge.png"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("error result: %s", res.Content)
	}
	if !bytes.Equal(res.Data, payload) {
		t.Error("payload bytes do not round trip")
	}
	if res.Filename != "badge.png" {
		t.Errorf("Filename = %q, want badge.png", res.Filename)
	}
	if !strings.Contains(res.Content, "badge.png") {
		t.Errorf("Content = %q, want the filename stub", res.Content)
	}
}

func TestExecuteRejectsNonImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>not an image</html>"))
	}))
	defer srv.Close()

	tool := New(AllowPrivateHosts())
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"url":"`+srv.URL+`"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "Not an image") {
		t.Errorf("result = %+v", res)
	}
	if res.Data != nil {
		t.Error("rejected fetch must not carry data")
	}
}

func TestExecuteRejectsOversizedImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(bytes.Repeat([]byte{0}, maxImageBytes+1))
	}))
	defer srv.Close()

	tool := New(AllowPrivateHosts())
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"url":"`+srv.URL+`"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "too large") {
		t.Errorf("result = %+v", res)
	}
}

func TestExecuteRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	tool := New(AllowPrivateHosts())
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"url":"`+srv.URL+`"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "HTTP 403") {
		t.Errorf("result = %+v", res)
	}
}

func TestExecuteBlocksPrivateHosts(t *testing.T) {
	tool := New()
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"url":"http://127.0.0.1/secret.png"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError {
		t.Error("loopback fetch should be rejected")
	}
}

func TestFilenameFor(t *testing.T) {
	tests := []struct {
		url         string
		contentType string
		want        string
	}{
		{"https://example.com/logo.png", "image/png", "logo.png"},
		{"https://example.com/a/b/photo.jpeg", "image/jpeg", "photo.jpeg"},
		{"https://example.com/", "image/png", "image.png"},
		{"https://example.com/noext", "image/jpeg", "image.jpg"},
		{"https://example.com/noext", "image/gif", "image.gif"},
		{"https://example.com/noext", "application/octet-stream", "image.img"},
	}

	for _, tt := range tests {
		if got := filenameFor(tt.url, tt.contentType); got != tt.want {
			t.Errorf("filenameFor(%q, %q) = %q, want %q", tt.url, tt.contentType, got, tt.want)
		}
	}
}
