package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/trafficcloak/internal/database"
	"github.com/nao1215/trafficcloak/internal/model"
)

func newStore(t *testing.T) *database.SessionDB {
	t.Helper()

	db, err := database.Open(t.TempDir(), database.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, kind := range []model.Kind{model.KindSearch, model.KindCrawl, model.KindCrawl} {
		r := model.NewReport(kind)
		r.StartedAt = base.Add(time.Duration(i) * time.Minute)
		r.Visit("https://en.wikipedia.org/wiki/Gopher")
		r.Finish(model.StateExhausted, model.ReasonDepthReached, nil)
		require.NoError(t, db.SaveReport(t.Context(), r))
	}
	return db
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := New(newStore(t)).Handler()
	rec := get(t, h, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListSessions(t *testing.T) {
	t.Parallel()

	h := New(newStore(t)).Handler()

	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantCount int
	}{
		{name: "all kinds", target: "/sessions", wantCode: http.StatusOK, wantCount: 3},
		{name: "filtered by kind", target: "/sessions?kind=crawl", wantCode: http.StatusOK, wantCount: 2},
		{name: "limited", target: "/sessions?limit=1", wantCode: http.StatusOK, wantCount: 1},
		{name: "unknown kind", target: "/sessions?kind=scan", wantCode: http.StatusBadRequest},
		{name: "bad limit", target: "/sessions?limit=-3", wantCode: http.StatusBadRequest},
		{name: "non-numeric limit", target: "/sessions?limit=ten", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := get(t, h, tt.target)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}

			var body struct {
				Sessions []*model.Report `json:"sessions"`
				Count    int             `json:"count"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCount, body.Count)
			assert.Len(t, body.Sessions, tt.wantCount)
		})
	}
}

func TestGetSession(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	reports, err := store.ListReports(t.Context(), model.KindSearch, 1)
	require.NoError(t, err)
	require.Len(t, reports, 1)

	h := New(store).Handler()

	t.Run("known id", func(t *testing.T) {
		t.Parallel()

		rec := get(t, h, "/sessions/"+reports[0].ID)
		require.Equal(t, http.StatusOK, rec.Code)

		var got model.Report
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, reports[0].ID, got.ID)
		assert.Equal(t, model.KindSearch, got.Kind)
	})

	t.Run("unknown id", func(t *testing.T) {
		t.Parallel()

		rec := get(t, h, "/sessions/does-not-exist")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestStats(t *testing.T) {
	t.Parallel()

	rec := get(t, New(newStore(t)).Handler(), "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Total  int                    `json:"total"`
		States []database.StateCount `json:"states"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Total)
	assert.Len(t, body.States, 2)
}

type brokenStore struct{}

var errBroken = errors.New("disk gone")

func (brokenStore) ListReports(context.Context, model.Kind, int) ([]*model.Report, error) {
	return nil, errBroken
}

func (brokenStore) GetReport(context.Context, string) (*model.Report, error) {
	return nil, errBroken
}

func (brokenStore) CountByState(context.Context) ([]database.StateCount, error) {
	return nil, errBroken
}

func TestStoreErrors(t *testing.T) {
	t.Parallel()

	h := New(brokenStore{}).Handler()

	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/healthz").Code)
	assert.Equal(t, http.StatusInternalServerError, get(t, h, "/sessions").Code)
	assert.Equal(t, http.StatusInternalServerError, get(t, h, "/sessions/x").Code)

	rec := get(t, h, "/stats")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk gone")
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- New(newStore(t)).Run(ctx, addr)
	}()

	require.Eventually(t, func() bool {
		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://"+addr+"/healthz", nil)
		if err != nil {
			return false
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
