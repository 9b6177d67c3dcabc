package matchfeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/livepredict/internal/model"
)

const runningJSON = `[{
	"id": 42,
	"status": "running",
	"scheduled_at": "2026-03-01T18:00:00Z",
	"begin_at": "2026-03-01T18:05:00Z",
	"number_of_games": 3,
	"videogame": {"id": 3, "name": "Counter-Strike", "slug": "cs-go"},
	"tournament": {"id": 1, "name": "Major Playoffs"},
	"opponents": [
		{"opponent": {"id": 1, "name": "Natus Vincere", "acronym": "NAVI"}},
		{"opponent": {"id": 2, "name": "Vitality", "acronym": null}}
	],
	"results": [{"team_id": 1, "score": 1}, {"team_id": 2, "score": 0}],
	"games": [{"id": 10, "winner": {"id": 1}}, {"id": 11, "winner": null}]
}]`

const upcomingJSON = `[{
	"id": 43,
	"status": "not_started",
	"scheduled_at": "",
	"begin_at": "2026-03-02T12:00:00Z",
	"videogame": {"id": 1, "name": "LoL", "slug": "league-of-legends"},
	"league": {"id": 5, "name": "LEC"},
	"opponents": []
}]`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewClient(server.URL, "test-token", WithRateLimit(1000, 10))
}

func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("", "tok")
		if c.baseURL != DefaultBaseURL {
			t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
		}
		if c.pageSize != 20 {
			t.Errorf("pageSize = %d, want 20", c.pageSize)
		}
		if c.httpClient.Timeout != 15*time.Second {
			t.Errorf("Timeout = %v, want 15s", c.httpClient.Timeout)
		}
		if c.limiter == nil || c.logger == nil {
			t.Error("limiter and logger should be set")
		}
	})

	t.Run("with options", func(t *testing.T) {
		hc := &http.Client{}
		c := NewClient("https://feed.example.com", "", WithHTTPClient(hc), WithPageSize(50), WithTimeout(time.Second))
		if c.httpClient != hc {
			t.Error("custom HTTP client not set")
		}
		if c.pageSize != 50 {
			t.Errorf("pageSize = %d, want 50", c.pageSize)
		}
	})
}

func TestGetMatches(t *testing.T) {
	t.Run("request shape", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/matches/running" {
				t.Errorf("path = %q", r.URL.Path)
			}
			if got := r.URL.Query().Get("page[size]"); got != "20" {
				t.Errorf("page[size] = %q, want 20", got)
			}
			if got := r.URL.Query().Get("filter[videogame]"); got != "csgo" {
				t.Errorf("filter[videogame] = %q, want csgo", got)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
				t.Errorf("Authorization = %q", got)
			}
			w.Write([]byte(runningJSON))
		})

		matches, err := c.GetMatches(context.Background(), ActionRunning, GameCS2)
		if err != nil {
			t.Fatalf("GetMatches failed: %v", err)
		}
		if len(matches) != 1 || matches[0].ID != "ps-42" {
			t.Fatalf("matches = %+v", matches)
		}
	})

	t.Run("no game filter", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.URL.Query()["filter[videogame]"]; ok {
				t.Error("filter should be omitted")
			}
			w.Write([]byte("[]"))
		})
		if _, err := c.GetMatches(context.Background(), ActionPast, ""); err != nil {
			t.Fatalf("GetMatches failed: %v", err)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		c := NewClient("http://unused", "")
		if _, err := c.GetMatches(context.Background(), "live", ""); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("server error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		_, err := c.GetMatches(context.Background(), ActionRunning, "")
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
			t.Errorf("err = %v, want APIError 429", err)
		}
	})
}

func TestListMatches(t *testing.T) {
	t.Run("running then upcoming", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			switch r.URL.Path {
			case "/matches/running":
				w.Write([]byte(runningJSON))
			case "/matches/upcoming":
				w.Write([]byte(upcomingJSON))
			default:
				http.NotFound(w, r)
			}
		})

		matches, err := c.ListMatches(context.Background(), "")
		if err != nil {
			t.Fatalf("ListMatches failed: %v", err)
		}
		if len(matches) != 2 || matches[0].ID != "ps-42" || matches[1].ID != "ps-43" {
			t.Errorf("matches = %+v", matches)
		}
		if calls.Load() != 2 {
			t.Errorf("calls = %d, want 2", calls.Load())
		}
	})

	t.Run("one list fails", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/upcoming") {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(runningJSON))
		})

		matches, err := c.ListMatches(context.Background(), "")
		if err != nil {
			t.Fatalf("ListMatches failed: %v", err)
		}
		if len(matches) != 1 {
			t.Errorf("len(matches) = %d, want 1", len(matches))
		}
	})

	t.Run("both fail", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		if _, err := c.ListMatches(context.Background(), ""); err == nil {
			t.Error("expected error")
		}
	})
}

func TestGetMatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/matches/42" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(strings.Trim(runningJSON, "[]")))
	})

	for _, id := range []string{"ps-42", "42"} {
		m, err := c.GetMatch(context.Background(), id)
		if err != nil {
			t.Fatalf("GetMatch(%q) failed: %v", id, err)
		}
		if m.ID != "ps-42" {
			t.Errorf("ID = %q, want ps-42", m.ID)
		}
	}

	if _, err := c.GetMatch(context.Background(), "ps-7"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := c.GetMatch(context.Background(), "ps-abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRateLimitHonoursContext(t *testing.T) {
	c := NewClient("http://unused", "", WithRateLimit(0.001, 1))
	c.limiter.Allow() // drain the only token

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.GetMatches(ctx, ActionRunning, ""); err == nil {
		t.Error("expected rate limit error")
	}
}

func TestAPIMatchToModel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/running") {
			w.Write([]byte(runningJSON))
			return
		}
		w.Write([]byte(upcomingJSON))
	})

	matches, err := c.ListMatches(context.Background(), "")
	if err != nil {
		t.Fatalf("ListMatches failed: %v", err)
	}

	live := matches[0]
	if live.Status != model.MatchRunning {
		t.Errorf("Status = %q, want running", live.Status)
	}
	if live.Game != GameCS2 || live.Tournament != "Major Playoffs" {
		t.Errorf("Game = %q, Tournament = %q", live.Game, live.Tournament)
	}
	if live.TeamA.ShortName != "NAVI" || live.TeamB.ShortName != "Vita" {
		t.Errorf("short names = %q, %q", live.TeamA.ShortName, live.TeamB.ShortName)
	}
	if live.TeamA.Score != 1 || live.MapsA != 1 || live.MapsB != 0 {
		t.Errorf("score = %d, maps = %d-%d", live.TeamA.Score, live.MapsA, live.MapsB)
	}
	want := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	if live.StartTime == nil || !live.StartTime.Equal(want) {
		t.Errorf("StartTime = %v, want scheduled_at %v", live.StartTime, want)
	}

	up := matches[1]
	if up.Status != model.MatchNotStarted || up.Game != GameLeague || up.Tournament != "LEC" {
		t.Errorf("upcoming = %+v", up)
	}
	if up.TeamA.Name != "TBD" || up.TeamB.ID != "unknown" {
		t.Errorf("missing opponents = %+v / %+v", up.TeamA, up.TeamB)
	}
	begin := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	if up.StartTime == nil || !up.StartTime.Equal(begin) {
		t.Errorf("StartTime = %v, want begin_at fallback", up.StartTime)
	}
}

func TestGameLabel(t *testing.T) {
	tests := []struct {
		slug string
		want string
	}{
		{"cs-go", GameCS2},
		{"valorant", GameValorant},
		{"league-of-legends", GameLeague},
		{"lol", GameLeague},
		{"dota-2", GameDota2},
		{"", GameCS2},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			if got := gameLabel(tt.slug); got != tt.want {
				t.Errorf("gameLabel(%q) = %q, want %q", tt.slug, got, tt.want)
			}
		})
	}
}
