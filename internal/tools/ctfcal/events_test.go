package ctfcal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

const eventsFixture = `[
	{
		"title": "ExampleCTF 2026",
		"start": "2026-09-05T10:00:00+00:00",
		"finish": "2026-09-07T10:00:00+00:00",
		"format": "Jeopardy",
		"url": "https://example.ctf",
		"weight": 24.5,
		"onsite": false
	},
	{
		"title": "FinalsCTF",
		"start": "2026-09-12T08:00:00+00:00",
		"finish": "2026-09-13T08:00:00+00:00",
		"format": "Attack-Defense",
		"url": "https://finals.ctf",
		"weight": 50.0,
		"onsite": true
	}
]`

func TestExecute(t *testing.T) {
	fixedNow := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.ParseInt(r.URL.Query().Get("start"), 10, 64)
		finish, _ := strconv.ParseInt(r.URL.Query().Get("finish"), 10, 64)
		if start != fixedNow.Unix() {
			t.Errorf("start = %d, want %d", start, fixedNow.Unix())
		}
		if finish != fixedNow.AddDate(0, 0, lookaheadDays).Unix() {
			t.Errorf("finish = %d, want a %d day window", finish, lookaheadDays)
		}
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "KuroBot") {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Write([]byte(eventsFixture))
	}))
	defer srv.Close()

	tool := New(WithBaseURL(srv.URL), WithClock(func() time.Time { return fixedNow }))
	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("error result: %s", res.Content)
	}

	for _, want := range []string{
		"1. ExampleCTF 2026 (Jeopardy, online, weight 24.5)",
		"2. FinalsCTF (Attack-Defense, onsite, weight 50.0)",
		"Sat Sep 5 10:00 UTC",
		"https://finals.ctf",
	} {
		if !strings.Contains(res.Content, want) {
			t.Errorf("Content missing %q:\n%s", want, res.Content)
		}
	}
}

func TestExecuteEmptyCalendar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	tool := New(WithBaseURL(srv.URL))
	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Error("empty calendar is not an error")
	}
	if res.Content != "No upcoming CTFs in the next month." {
		t.Errorf("Content = %q", res.Content)
	}
}

func TestExecuteServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tool := New(WithBaseURL(srv.URL))
	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute() must not return a Go error, got %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "HTTP 502") {
		t.Errorf("result = %+v", res)
	}
}

func TestFormatTimeFallsBackToRaw(t *testing.T) {
	if got := formatTime("not-a-timestamp"); got != "not-a-timestamp" {
		t.Errorf("formatTime() = %q, want the raw string", got)
	}
}
