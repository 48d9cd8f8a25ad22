package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

func TestHTTPEndpoint(t *testing.T) {
	cases := map[string]string{
		"ws://localhost:2567":     "http://localhost:2567",
		"wss://example.com/game/": "https://example.com/game",
		"http://127.0.0.1:2567":   "http://127.0.0.1:2567",
		"https://example.com":     "https://example.com",
	}

	for in, want := range cases {
		u, err := HTTPEndpoint(in)
		if err != nil {
			t.Fatalf("HTTPEndpoint(%q): %v", in, err)
		}
		if got := u.String(); got != want {
			t.Errorf("HTTPEndpoint(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := HTTPEndpoint("ftp://example.com"); err == nil {
		t.Error("HTTPEndpoint accepted ftp scheme")
	}
}

func TestShareCandidates(t *testing.T) {
	var got ShareRequest
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/matchmake/shareICECandidates/lobby" {
			http.NotFound(w, r)
			return
		}

		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		json.NewEncoder(w).Encode(ShareResponse{
			Candidates: []webrtc.ICECandidateInit{{Candidate: "candidate:remote"}},
		})
	}))
	defer srv.Close()

	ex, err := NewExchange(ExchangeConfig{
		Endpoint: strings.Replace(srv.URL, "http://", "ws://", 1),
		Token:    "secret",
	})
	if err != nil {
		t.Fatalf("NewExchange: %v", err)
	}

	remote, err := ex.ShareCandidates(context.Background(), "lobby", "sess-1", []webrtc.ICECandidateInit{
		{Candidate: "candidate:local"},
	})
	if err != nil {
		t.Fatalf("ShareCandidates: %v", err)
	}

	if len(remote) != 1 || remote[0].Candidate != "candidate:remote" {
		t.Errorf("remote = %+v", remote)
	}
	if got.SessionID != "sess-1" || got.Token != "secret" {
		t.Errorf("request = %+v", got)
	}
	if len(got.Candidates) != 1 || got.Candidates[0].Candidate != "candidate:local" {
		t.Errorf("request candidates = %+v", got.Candidates)
	}
	if auth != "Bearer secret" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestShareCandidates_EmptyListIsSent(t *testing.T) {
	var raw map[string]json.RawMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	ex, _ := NewExchange(ExchangeConfig{Endpoint: srv.URL})

	remote, err := ex.ShareCandidates(context.Background(), "lobby", "sess-1", nil)
	if err != nil {
		t.Fatalf("ShareCandidates: %v", err)
	}
	if len(remote) != 0 {
		t.Errorf("remote = %+v, want empty", remote)
	}
	if string(raw["candidates"]) != "[]" {
		t.Errorf("candidates = %s, want []", raw["candidates"])
	}
}

func TestShareCandidates_ExchangeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"session not found","code":4214}`))
	}))
	defer srv.Close()

	ex, _ := NewExchange(ExchangeConfig{Endpoint: srv.URL})

	_, err := ex.ShareCandidates(context.Background(), "lobby", "missing", nil)

	var exErr *ExchangeError
	if !errors.As(err, &exErr) {
		t.Fatalf("err = %v, want ExchangeError", err)
	}
	if exErr.Code != 4214 {
		t.Errorf("code = %d, want 4214", exErr.Code)
	}
}

func TestShareCandidates_PlainError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ex, _ := NewExchange(ExchangeConfig{Endpoint: srv.URL})

	_, err := ex.ShareCandidates(context.Background(), "lobby", "sess-1", nil)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v, want server text", err)
	}
}

func TestShareCandidates_EmptySessionID(t *testing.T) {
	ex, _ := NewExchange(ExchangeConfig{Endpoint: "http://127.0.0.1:1"})

	_, err := ex.ShareCandidates(context.Background(), "lobby", "", nil)
	if !errors.Is(err, ErrEmptySessionID) {
		t.Fatalf("err = %v, want %v", err, ErrEmptySessionID)
	}
}
