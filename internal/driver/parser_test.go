package driver

import (
	"net/url"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

// TestParseNode tests link and form extraction from a DOM.
func TestParseNode(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://en.example.org/wiki/Start")
	if err != nil {
		t.Fatalf("failed to parse base: %v", err)
	}

	doc, err := html.Parse(strings.NewReader(`<html><head><title>Start page</title></head><body>
		<a href="/wiki/Next">Next <b>article</b></a>
		<a href="https://other.example/x">Elsewhere</a>
		<a href="mailto:someone@example.org">Mail</a>
		<a href="#top">Top</a>
		<form><input name="search"><select name="lang"></select><input type="submit" value="Go"></form>
	</body></html>`))
	if err != nil {
		t.Fatalf("failed to parse html: %v", err)
	}

	result := parseNode(base, doc)

	if result.title != "Start page" {
		t.Errorf("expected title %q, got %q", "Start page", result.title)
	}

	if len(result.links) != 2 {
		t.Fatalf("expected 2 links, got %d: %v", len(result.links), result.links)
	}
	if result.links[0].URL != "https://en.example.org/wiki/Next" {
		t.Errorf("expected resolved URL, got %q", result.links[0].URL)
	}
	if result.links[0].Text != "Next article" {
		t.Errorf("expected nested text, got %q", result.links[0].Text)
	}

	if len(result.forms) != 1 {
		t.Fatalf("expected 1 form, got %d", len(result.forms))
	}
	form := result.forms[0]
	if form.method != "GET" {
		t.Errorf("expected GET, got %s", form.method)
	}
	if form.action != base.String() {
		t.Errorf("expected action to default to page URL, got %s", form.action)
	}
	if !form.has("search") || !form.has("lang") {
		t.Errorf("expected named fields, got %v", form.fields)
	}
	if form.has("") {
		t.Error("unnamed submit button should not be a field")
	}

	values := form.values("search", "gophers")
	if values.Get("search") != "gophers" {
		t.Errorf("expected search value, got %q", values.Get("search"))
	}
}

// TestResolveURL tests relative URL handling.
func TestResolveURL(t *testing.T) {
	t.Parallel()

	base, _ := url.Parse("https://example.com/a/b") //nolint:errcheck

	tests := []struct {
		href string
		want string
	}{
		{href: "c", want: "https://example.com/a/c"},
		{href: "/d", want: "https://example.com/d"},
		{href: "//cdn.example.com/e", want: "https://cdn.example.com/e"},
		{href: " JavaScript:alert(1)", want: ""},
		{href: "tel:123", want: ""},
		{href: "#frag", want: ""},
		{href: "", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.href, func(t *testing.T) {
			t.Parallel()

			if got := resolveURL(base, tc.href); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
