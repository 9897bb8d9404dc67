package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/trafficcloak/internal/config"
	"github.com/nao1215/trafficcloak/internal/model"
)

// testSite serves a search form, a result page, two chained articles and
// a JSON DNS-over-HTTPS endpoint.
type testSite struct {
	*httptest.Server

	mu      sync.Mutex
	queries []string
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()

	site := &testSite{}
	html := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, "<html><body>"+body+"</body></html>") //nolint:errcheck // test server
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, _ *http.Request) {
		html(w, `<form action="/results" method="get"><input type="text" name="q"><input type="submit" value="Go"></form>`)
	})
	mux.HandleFunc("/results", func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.queries = append(site.queries, r.URL.Query().Get("q"))
		site.mu.Unlock()
		html(w, `<a href="/article/one">first article</a>`)
	})
	mux.HandleFunc("/article/one", func(w http.ResponseWriter, _ *http.Request) {
		html(w, `<p>text</p><a href="/article/two">second article</a>`)
	})
	mux.HandleFunc("/article/two", func(w http.ResponseWriter, _ *http.Request) {
		html(w, `<p>the end</p>`)
	})
	mux.HandleFunc("/resolve", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("type") != "A" {
			_, _ = io.WriteString(w, `{"Status":0}`) //nolint:errcheck // test server
			return
		}
		name := r.URL.Query().Get("name")
		fmt.Fprintf(w, `{"Status":0,"Answer":[{"name":"%s.","type":1,"TTL":60,"data":"192.0.2.7"}]}`, name)
	})

	site.Server = httptest.NewServer(mux)
	t.Cleanup(site.Close)
	return site
}

// writeFixtures creates a data directory and a config file pointing at site.
func writeFixtures(t *testing.T, site *testSite) (dataDir, configPath string) {
	t.Helper()

	dataDir = t.TempDir()
	files := map[string]string{
		"sentence.txt": "how to [verb] a [noun]\n",
		"verb.txt":     "feed\nwash\n",
		"nouns.txt":    "duck\ngoose\n",
		"top-1m.csv":   "1,example.com\n2,example.org\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dataDir, name), []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}

	cfg := fmt.Sprintf(`search:
  searchUrl: "%[1]s/search"
  denyPresets: []
  depth: 2
crawl:
  entryUrl: "%[1]s/article/one"
  denyPresets: []
  depth: 5
corpus:
  pools:
    "[verb]": "verb.txt"
    "[noun]": "nouns.txt"
resolver:
  doh: ["%[1]s/resolve"]
  system: false
`, site.URL)
	configPath = filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(cfg), 0600); err != nil {
		t.Fatal(err)
	}
	return dataDir, configPath
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return stdout.String(), err
}

func decodeReports(t *testing.T, out string) []*model.Report {
	t.Helper()

	dec := json.NewDecoder(strings.NewReader(out))
	var reports []*model.Report
	for {
		var r model.Report
		err := dec.Decode(&r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("failed to decode report: %v\n%s", err, out)
		}
		reports = append(reports, &r)
	}
	return reports
}

// isolate keeps proxies from the environment out of the tests.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("PROXIES", "")
	t.Setenv("PROXIES_FILE", "")
}

func TestCrawlAndHistory(t *testing.T) {
	isolate(t)
	site := newTestSite(t)
	dataDir, configPath := writeFixtures(t, site)
	dbDir := t.TempDir()
	common := []string{"--config", configPath, "--data-dir", dataDir, "--db-dir", dbDir}

	out, err := execute(t, append([]string{"crawl", "--no-dwell", "--host-delay", "0", "--json"}, common...)...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reports := decodeReports(t, out)
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	crawl := reports[0]
	if crawl.Kind != model.KindCrawl || crawl.PagesVisited != 2 || crawl.Reason != model.ReasonNoLinks {
		t.Errorf("expected a 2-page crawl ending with no links, got %+v", crawl)
	}

	t.Run("history lists the session", func(t *testing.T) {
		out, err := execute(t, append([]string{"history", "--json"}, common...)...)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var list []*model.Report
		if err := json.Unmarshal([]byte(out), &list); err != nil {
			t.Fatalf("expected a JSON array, got %v\n%s", err, out)
		}
		if len(list) != 1 || list[0].ID != crawl.ID {
			t.Errorf("expected the crawl session in history, got %d entries", len(list))
		}
	})

	t.Run("history shows one session", func(t *testing.T) {
		out, err := execute(t, append([]string{"history", "--markdown", crawl.ID}, common...)...)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "# Crawl Session") || !strings.Contains(out, crawl.ID) {
			t.Errorf("expected a markdown report, got: %s", out)
		}
	})

	t.Run("history rejects unknown kinds", func(t *testing.T) {
		if _, err := execute(t, append([]string{"history", "--kind", "scan"}, common...)...); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("history prunes old sessions", func(t *testing.T) {
		out, err := execute(t, append([]string{"history", "--prune", "8760h"}, common...)...)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Deleted 0 sessions") {
			t.Errorf("expected nothing to be pruned, got: %s", out)
		}
	})
}

func TestHistory_NoDatabase(t *testing.T) {
	isolate(t)
	site := newTestSite(t)
	dataDir, configPath := writeFixtures(t, site)

	out, err := execute(t, "history", "--config", configPath, "--data-dir", dataDir, "--db-dir", t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No sessions recorded.") {
		t.Errorf("expected empty history message, got: %s", out)
	}
}

func TestSearchCmd(t *testing.T) {
	isolate(t)
	site := newTestSite(t)
	dataDir, configPath := writeFixtures(t, site)

	out, err := execute(t, "search", "--config", configPath, "--data-dir", dataDir,
		"--no-save", "--no-dwell", "--host-delay", "0", "--markdown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "# Search Session") {
		t.Errorf("expected a markdown search report, got: %s", out)
	}

	site.mu.Lock()
	defer site.mu.Unlock()
	if len(site.queries) != 1 || !strings.HasPrefix(site.queries[0], "how to ") {
		t.Errorf("expected one synthesized query, got %v", site.queries)
	}
}

func TestSearchCmd_MissingCorpus(t *testing.T) {
	isolate(t)
	site := newTestSite(t)
	_, configPath := writeFixtures(t, site)

	_, err := execute(t, "search", "--config", configPath, "--data-dir", t.TempDir(), "--no-save")
	if err == nil || !strings.Contains(err.Error(), "corpus") {
		t.Errorf("expected a corpus error, got %v", err)
	}
}

func TestLookupCmd(t *testing.T) {
	isolate(t)
	site := newTestSite(t)
	dataDir, configPath := writeFixtures(t, site)

	t.Run("resolves given hosts through DoH", func(t *testing.T) {
		out, err := execute(t, "lookup", "example.com", "https://www.example.net/path",
			"--config", configPath, "--data-dir", dataDir, "--no-save", "--json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		reports := decodeReports(t, out)
		if len(reports) != 2 {
			t.Fatalf("expected 2 reports, got %d", len(reports))
		}
		for _, r := range reports {
			if r.Reason != model.ReasonResolved {
				t.Errorf("expected %s to resolve, got %s", r.Entry, r.Reason)
			}
			if len(r.Records) != 1 || r.Records[0] != "192.0.2.7" {
				t.Errorf("expected the DoH answer, got %v", r.Records)
			}
		}
		if reports[1].Entry != "www.example.net" {
			t.Errorf("expected a normalized host, got %q", reports[1].Entry)
		}
	})

	t.Run("picks a domain from the list", func(t *testing.T) {
		out, err := execute(t, "lookup", "--config", configPath, "--data-dir", dataDir, "--no-save", "--json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		reports := decodeReports(t, out)
		if len(reports) != 1 {
			t.Fatalf("expected 1 report, got %d", len(reports))
		}
		if e := reports[0].Entry; e != "example.com" && e != "example.org" {
			t.Errorf("expected a listed domain, got %q", e)
		}
	})

	t.Run("check-proxies drops unreachable proxies", func(t *testing.T) {
		t.Setenv("PROXIES", "http://127.0.0.1:1")

		out, err := execute(t, "lookup", "example.com", "--check-proxies",
			"--config", configPath, "--data-dir", dataDir, "--no-save")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "0 of 1 proxies usable") {
			t.Errorf("expected the proxy to be reported unusable, got: %s", out)
		}
	})
}

func TestRunCmd_OneCycle(t *testing.T) {
	isolate(t)
	site := newTestSite(t)
	dataDir, configPath := writeFixtures(t, site)

	for _, concurrent := range []bool{false, true} {
		t.Run(fmt.Sprintf("concurrent=%v", concurrent), func(t *testing.T) {
			args := []string{"run", "--config", configPath, "--data-dir", dataDir,
				"--db-dir", t.TempDir(), "--no-dwell", "--host-delay", "0", "--json"}
			if concurrent {
				args = append(args, "--concurrent")
			}

			out, err := execute(t, args...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			kinds := make(map[model.Kind]int)
			for _, r := range decodeReports(t, out) {
				kinds[r.Kind]++
				if r.Failed() {
					t.Errorf("expected %s session to succeed, got %s: %s", r.Kind, r.Reason, r.FailureReason)
				}
			}
			for _, kind := range []model.Kind{model.KindLookup, model.KindSearch, model.KindCrawl} {
				if kinds[kind] != 1 {
					t.Errorf("expected one %s report, got %d", kind, kinds[kind])
				}
			}
		})
	}
}

func TestConfigErrors(t *testing.T) {
	isolate(t)

	t.Run("explicit config must exist", func(t *testing.T) {
		_, err := execute(t, "crawl", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("json and markdown conflict", func(t *testing.T) {
		site := newTestSite(t)
		dataDir, configPath := writeFixtures(t, site)
		_, err := execute(t, "crawl", "--config", configPath, "--data-dir", dataDir, "--json", "--markdown")
		if !errors.Is(err, config.ErrConflictingReportFormats) {
			t.Errorf("expected ErrConflictingReportFormats, got %v", err)
		}
	})

	t.Run("unknown driver", func(t *testing.T) {
		site := newTestSite(t)
		dataDir, configPath := writeFixtures(t, site)
		_, err := execute(t, "crawl", "--config", configPath, "--data-dir", dataDir, "--driver", "lynx")
		if !errors.Is(err, config.ErrUnknownDriver) {
			t.Errorf("expected ErrUnknownDriver, got %v", err)
		}
	})

	t.Run("negative depth", func(t *testing.T) {
		site := newTestSite(t)
		dataDir, configPath := writeFixtures(t, site)
		_, err := execute(t, "crawl", "--config", configPath, "--data-dir", dataDir, "--depth", "-1")
		if !errors.Is(err, config.ErrInvalidDepth) {
			t.Errorf("expected ErrInvalidDepth, got %v", err)
		}
	})
}

func TestReportToFile(t *testing.T) {
	isolate(t)
	site := newTestSite(t)
	dataDir, configPath := writeFixtures(t, site)
	reportPath := filepath.Join(t.TempDir(), "reports", "crawl.json")

	out, err := execute(t, "crawl", "--config", configPath, "--data-dir", dataDir,
		"--no-save", "--no-dwell", "--host-delay", "0", "--json", "-o", reportPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "" {
		t.Errorf("expected nothing on stdout, got: %s", out)
	}

	data, err := os.ReadFile(reportPath) //nolint:gosec // test path
	if err != nil {
		t.Fatalf("expected report file: %v", err)
	}
	if reports := decodeReports(t, string(data)); len(reports) != 1 {
		t.Errorf("expected 1 report in file, got %d", len(reports))
	}
}
