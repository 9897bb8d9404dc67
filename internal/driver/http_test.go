package driver

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<html><head><title> Gophers </title></head><body>
<div id="nav"><a href="/wiki/Main_Page">Main page</a></div>
<div id="mw-content-text">
  <a href="/wiki/Go_(programming_language)">Go
     language</a>
  <a href="/wiki/Rob_Pike">Rob Pike</a>
  <a href="#cite">[1]</a>
  <a href="javascript:void(0)">toggle</a>
</div>
</body></html>`

func newSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/Gopher", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, articleHTML) //nolint:errcheck
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/wiki/Gopher", http.StatusFound)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/brotli", func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		if _, err := io.WriteString(bw, `<a href="/compressed">Compressed link</a>`); err != nil {
			t.Errorf("failed to compress: %v", err)
		}
		if err := bw.Close(); err != nil {
			t.Errorf("failed to flush: %v", err)
		}
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(buf.Bytes()) //nolint:errcheck
	})
	mux.HandleFunc("/zlib", func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := io.WriteString(zw, `<a href="/zlib-link">Zlib wrapped link</a>`); err != nil {
			t.Errorf("failed to compress: %v", err)
		}
		if err := zw.Close(); err != nil {
			t.Errorf("failed to flush: %v", err)
		}
		w.Header().Set("Content-Encoding", "deflate")
		_, _ = w.Write(buf.Bytes()) //nolint:errcheck
	})
	mux.HandleFunc("/raw-deflate", func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			t.Errorf("failed to create writer: %v", err)
			return
		}
		if _, err := io.WriteString(fw, `<a href="/raw-link">Raw deflate link</a>`); err != nil {
			t.Errorf("failed to compress: %v", err)
		}
		if err := fw.Close(); err != nil {
			t.Errorf("failed to flush: %v", err)
		}
		w.Header().Set("Content-Encoding", "deflate")
		_, _ = w.Write(buf.Bytes()) //nolint:errcheck
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `<p>no anchors at all</p>`) //nolint:errcheck
	})
	mux.HandleFunc("/search-form", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `<form action="/results" method="get">
			<input type="hidden" name="hl" value="en">
			<input type="text" name="q">
			<input type="submit" name="btn" value="Search">
		</form>`) //nolint:errcheck
	})
	mux.HandleFunc("/post-form", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `<form action="/results" method="post"><textarea name="q"></textarea></form>`) //nolint:errcheck
	})
	mux.HandleFunc("/results", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, `<a href="/hit">%s|%s|%s|%s</a>`, r.Method, r.Form.Get("q"), r.Form.Get("hl"), r.Form.Get("btn"))
	})
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "User-agent: *\nDisallow: /private\n") //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPDriverLoad(t *testing.T) {
	t.Parallel()

	srv := newSite(t)

	t.Run("follows redirects and records the final location", func(t *testing.T) {
		t.Parallel()

		d := NewHTTPDriver(srv.Client())
		require.NoError(t, d.Load(context.Background(), srv.URL+"/moved"))
		assert.Equal(t, srv.URL+"/wiki/Gopher", d.CurrentLocation())
		assert.Equal(t, "Gophers", d.Title())
	})

	t.Run("http error status is a navigation error", func(t *testing.T) {
		t.Parallel()

		d := NewHTTPDriver(srv.Client())
		err := d.Load(context.Background(), srv.URL+"/missing")
		require.ErrorIs(t, err, ErrNavigation)

		var navErr *NavigationError
		require.True(t, errors.As(err, &navErr))
		assert.Equal(t, http.StatusNotFound, navErr.StatusCode)
		assert.Empty(t, d.CurrentLocation())
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		t.Parallel()

		err := NewHTTPDriver(srv.Client()).Load(context.Background(), "ftp://example.com/")
		require.ErrorIs(t, err, ErrNavigation)
	})

	t.Run("brotli bodies are decoded", func(t *testing.T) {
		t.Parallel()

		d := NewHTTPDriver(srv.Client())
		require.NoError(t, d.Load(context.Background(), srv.URL+"/brotli"))

		links, err := d.CurrentLinks(context.Background())
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, "Compressed link", links[0].Text)
	})

	t.Run("deflate bodies are decoded", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			path string
			want string
		}{
			{path: "/zlib", want: "Zlib wrapped link"},
			{path: "/raw-deflate", want: "Raw deflate link"},
		}
		for _, tt := range tests {
			d := NewHTTPDriver(srv.Client())
			require.NoError(t, d.Load(context.Background(), srv.URL+tt.path), tt.path)

			links, err := d.CurrentLinks(context.Background())
			require.NoError(t, err)
			require.Len(t, links, 1, tt.path)
			assert.Equal(t, tt.want, links[0].Text)
		}
	})

	t.Run("robots.txt disallow", func(t *testing.T) {
		t.Parallel()

		d := NewHTTPDriver(srv.Client(), WithRobots(NewRobotsGate(srv.Client(), "cloak", time.Minute)))
		err := d.Load(context.Background(), srv.URL+"/private/page")
		require.ErrorIs(t, err, ErrNavigation)
		require.ErrorIs(t, err, ErrDisallowed)

		require.NoError(t, d.Load(context.Background(), srv.URL+"/wiki/Gopher"))
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := NewHTTPDriver(srv.Client()).Load(ctx, srv.URL+"/wiki/Gopher")
		require.ErrorIs(t, err, ErrNavigation)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestHTTPDriverCurrentLinks(t *testing.T) {
	t.Parallel()

	srv := newSite(t)

	t.Run("before load", func(t *testing.T) {
		t.Parallel()

		_, err := NewHTTPDriver(srv.Client()).CurrentLinks(context.Background())
		require.ErrorIs(t, err, ErrNoPage)
	})

	t.Run("first matching selector wins", func(t *testing.T) {
		t.Parallel()

		d := NewHTTPDriver(srv.Client(), WithLinkSelectors([]string{
			"#does-not-exist a",
			`#mw-content-text a[href^="/wiki/"]`,
			"a[href]",
		}))
		require.NoError(t, d.Load(context.Background(), srv.URL+"/wiki/Gopher"))

		links, err := d.CurrentLinks(context.Background())
		require.NoError(t, err)
		require.Len(t, links, 2)
		assert.Equal(t, srv.URL+"/wiki/Go_(programming_language)", links[0].URL)
		assert.Equal(t, "Go language", links[0].Text)
		assert.Equal(t, "Rob Pike", links[1].Text)
	})

	t.Run("pseudo links are dropped", func(t *testing.T) {
		t.Parallel()

		d := NewHTTPDriver(srv.Client())
		require.NoError(t, d.Load(context.Background(), srv.URL+"/wiki/Gopher"))

		links, err := d.CurrentLinks(context.Background())
		require.NoError(t, err)
		assert.Len(t, links, 3)
		for _, link := range links {
			assert.True(t, strings.HasPrefix(link.URL, srv.URL), link.URL)
		}
	})

	t.Run("page without anchors", func(t *testing.T) {
		t.Parallel()

		d := NewHTTPDriver(srv.Client())
		require.NoError(t, d.Load(context.Background(), srv.URL+"/plain"))

		links, err := d.CurrentLinks(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, links)
		assert.Empty(t, links)
	})
}

func TestHTTPDriverSubmitForm(t *testing.T) {
	t.Parallel()

	srv := newSite(t)

	t.Run("get form keeps hidden fields and skips buttons", func(t *testing.T) {
		t.Parallel()

		d := NewHTTPDriver(srv.Client())
		require.NoError(t, d.SubmitForm(context.Background(), srv.URL+"/search-form", "q", "blue whale"))
		assert.True(t, strings.HasPrefix(d.CurrentLocation(), srv.URL+"/results?"))

		links, err := d.CurrentLinks(context.Background())
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, "GET|blue whale|en|", links[0].Text)
	})

	t.Run("post form sends a urlencoded body", func(t *testing.T) {
		t.Parallel()

		d := NewHTTPDriver(srv.Client())
		require.NoError(t, d.SubmitForm(context.Background(), srv.URL+"/post-form", "q", "red fox"))
		assert.Equal(t, srv.URL+"/results", d.CurrentLocation())

		links, err := d.CurrentLinks(context.Background())
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, "POST|red fox||", links[0].Text)
	})

	t.Run("missing field", func(t *testing.T) {
		t.Parallel()

		d := NewHTTPDriver(srv.Client())
		err := d.SubmitForm(context.Background(), srv.URL+"/search-form", "query", "x")
		require.ErrorIs(t, err, ErrNavigation)
		require.ErrorIs(t, err, ErrFormNotFound)
	})
}

func TestHostLimiter(t *testing.T) {
	t.Parallel()

	t.Run("spaces requests to one host", func(t *testing.T) {
		t.Parallel()

		l := NewHostLimiter(50*time.Millisecond, 0, 0)
		ctx := context.Background()

		require.NoError(t, l.Wait(ctx, "example.com"))
		start := time.Now()
		require.NoError(t, l.Wait(ctx, "EXAMPLE.com"))
		assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

		start = time.Now()
		require.NoError(t, l.Wait(ctx, "other.example"))
		assert.Less(t, time.Since(start), 40*time.Millisecond)
	})

	t.Run("concurrent callers are spaced apart", func(t *testing.T) {
		t.Parallel()

		const delay = 40 * time.Millisecond
		l := NewHostLimiter(delay, 0, 0)
		ctx := context.Background()
		require.NoError(t, l.Wait(ctx, "example.com"))

		start := time.Now()
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			elapsed []time.Duration
		)
		for range 3 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := l.Wait(ctx, "example.com"); err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				mu.Lock()
				elapsed = append(elapsed, time.Since(start))
				mu.Unlock()
			}()
		}
		wg.Wait()

		require.Len(t, elapsed, 3)
		slices.Sort(elapsed)
		assert.GreaterOrEqual(t, elapsed[0], delay-10*time.Millisecond)
		for i := 1; i < len(elapsed); i++ {
			assert.GreaterOrEqual(t, elapsed[i]-elapsed[i-1], delay-15*time.Millisecond)
		}
	})

	t.Run("honours cancellation", func(t *testing.T) {
		t.Parallel()

		l := NewHostLimiter(time.Hour, 0, 0)
		require.NoError(t, l.Wait(context.Background(), "example.com"))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		require.ErrorIs(t, l.Wait(ctx, "example.com"), context.DeadlineExceeded)
	})

	t.Run("nil limiter never waits", func(t *testing.T) {
		t.Parallel()

		var l *HostLimiter
		require.NoError(t, l.Wait(context.Background(), "example.com"))
	})
}

func TestNavigationError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := navigationError("https://example.com/", 0, cause)
	assert.ErrorIs(t, err, ErrNavigation)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")

	assert.Contains(t, navigationError("https://example.com/", 503, nil).Error(), "HTTP 503")
}
