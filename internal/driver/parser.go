package driver

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/trafficcloak/internal/model"
)

// HTML element names for form field detection.
const (
	htmlElementInput    = "input"
	htmlElementSelect   = "select"
	htmlElementTextarea = "textarea"
)

// parseResult holds what a session needs from one page.
type parseResult struct {
	// title is the text of the <title> element.
	title string

	// links are the anchors of the page with absolute URLs.
	links []model.Link

	// forms are the forms of the page.
	forms []formInfo
}

// formInfo describes an HTML form.
type formInfo struct {
	// action is the absolute submit URL.
	action string

	// method is GET or POST.
	method string

	fields []formField
}

// formField is one named input of a form.
type formField struct {
	name  string
	typ   string
	value string
}

// has reports whether the form contains a field called name.
func (f formInfo) has(name string) bool {
	for _, field := range f.fields {
		if field.name == name {
			return true
		}
	}
	return false
}

// values returns the form's submittable values with field set to value.
// Buttons and unchecked choices are left out.
func (f formInfo) values(field, value string) url.Values {
	out := url.Values{}
	for _, ff := range f.fields {
		switch ff.typ {
		case "submit", "button", "image", "reset", "checkbox", "radio", "file":
			continue
		}
		if ff.name == field {
			continue
		}
		out.Add(ff.name, ff.value)
	}
	out.Set(field, value)
	return out
}

// parseNode walks the DOM under root. Relative URLs are resolved against
// base.
func parseNode(base *url.URL, root *html.Node) *parseResult {
	result := &parseResult{
		links: make([]model.Link, 0),
		forms: make([]formInfo, 0),
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if result.title == "" {
					result.title = strings.TrimSpace(nodeText(n))
				}
			case "a":
				if href := resolveURL(base, getAttr(n, "href")); href != "" {
					result.links = append(result.links, model.Link{URL: href, Text: collapseSpace(nodeText(n))})
				}
			case "form":
				form := formInfo{
					action: resolveURL(base, getAttr(n, "action")),
					method: strings.ToUpper(getAttr(n, "method")),
					fields: make([]formField, 0),
				}
				if form.action == "" && base != nil {
					form.action = base.String()
				}
				if form.method != "POST" {
					form.method = "GET"
				}
				extractFormFields(n, &form)
				result.forms = append(result.forms, form)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return result
}

// extractFormFields collects the named inputs below n.
func extractFormFields(n *html.Node, form *formInfo) {
	if n.Type == html.ElementNode && (n.Data == htmlElementInput || n.Data == htmlElementSelect || n.Data == htmlElementTextarea) {
		field := formField{
			name:  getAttr(n, "name"),
			typ:   strings.ToLower(getAttr(n, "type")),
			value: getAttr(n, "value"),
		}
		if field.typ == "" {
			switch n.Data {
			case htmlElementTextarea:
				field.typ = htmlElementTextarea
			case htmlElementSelect:
				field.typ = htmlElementSelect
			default:
				field.typ = "text"
			}
		}
		if field.name != "" {
			form.fields = append(form.fields, field)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractFormFields(c, form)
	}
}

// resolveURL resolves href against base. Pseudo links and fragment-only
// links yield "".
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

// nodeText concatenates the text below n.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// collapseSpace trims s and folds internal whitespace runs to one space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// getAttr returns the value of attribute key, or "".
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
