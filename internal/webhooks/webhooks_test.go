package webhooks_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/lherron/importlink/internal/webhooks"
)

func TestTargets(t *testing.T) {
	payload := webhooks.Payload{RunID: "run-7"}
	got := webhooks.Targets([]string{
		"http://example.com/hook/{run_id}",
		"ftp://invalid.example.com/hook",
		"  ",
		"http://example.com/hook/run-7/",
		"https://other.example.com",
		"not a url",
	}, payload, nil)

	want := []string{
		"http://example.com/hook/run-7",
		"https://other.example.com",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Targets() = %v, want %v", got, want)
	}
}

func TestDispatch(t *testing.T) {
	var mu sync.Mutex
	var received []webhooks.Payload
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var p webhooks.Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		mu.Lock()
		received = append(received, p)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ok.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	d := webhooks.New([]string{ok.URL + "/{run_id}", failing.URL})
	payload := webhooks.Payload{
		RunID:    "run-1",
		Source:   "events.jsonl",
		Records:  3,
		Counts:   map[string]int{"relinked": 2, "rejected": 1},
		Finished: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	if delivered := d.Dispatch(context.Background(), payload); delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("received %d payloads, want 1", len(received))
	}
	if received[0].RunID != "run-1" || received[0].Counts["relinked"] != 2 {
		t.Errorf("received %+v", received[0])
	}
}

func TestDispatch_NoTargets(t *testing.T) {
	if !webhooks.New(nil).Empty() {
		t.Error("Empty() = false without targets")
	}
	if n := webhooks.New(nil).Dispatch(context.Background(), webhooks.Payload{}); n != 0 {
		t.Errorf("Dispatch() = %d with no targets", n)
	}
	if n := webhooks.New([]string{"ftp://x"}).Dispatch(context.Background(), webhooks.Payload{}); n != 0 {
		t.Errorf("Dispatch() = %d with only invalid targets", n)
	}
}
