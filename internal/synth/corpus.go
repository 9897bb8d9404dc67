package synth

import (
	"fmt"
	"slices"

	"github.com/nao1215/trafficcloak/internal/source"
)

// Corpus is an ordered list of templates plus a word pool per placeholder.
type Corpus struct {
	templates []string

	// order keeps placeholders in registration order so that substitution
	// is deterministic for a given random source.
	order []string
	pools map[string][]string
}

// NewCorpus returns an empty Corpus.
func NewCorpus() *Corpus {
	return &Corpus{
		templates: make([]string, 0),
		order:     make([]string, 0),
		pools:     make(map[string][]string),
	}
}

// AddTemplate appends one template.
func (c *Corpus) AddTemplate(template string) {
	c.templates = append(c.templates, template)
}

// AddPool registers the words for a placeholder. Registering the same
// placeholder again replaces its pool.
func (c *Corpus) AddPool(placeholder string, words []string) {
	if _, ok := c.pools[placeholder]; !ok {
		c.order = append(c.order, placeholder)
	}
	c.pools[placeholder] = slices.Clone(words)
}

// LoadTemplatesFromFile appends every line of path as a template.
func (c *Corpus) LoadTemplatesFromFile(path string) error {
	lines, err := source.LoadLines(path)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}
	for _, line := range lines {
		c.AddTemplate(line)
	}
	return nil
}

// AddPoolFromFile registers every line of path as a word for placeholder.
func (c *Corpus) AddPoolFromFile(placeholder, path string) error {
	words, err := source.LoadLines(path)
	if err != nil {
		return fmt.Errorf("failed to load pool %s: %w", placeholder, err)
	}
	c.AddPool(placeholder, words)
	return nil
}

// TemplateCount returns the number of loaded templates.
func (c *Corpus) TemplateCount() int {
	return len(c.templates)
}

// Placeholders returns the registered placeholders in registration order.
func (c *Corpus) Placeholders() []string {
	return slices.Clone(c.order)
}

// Validate reports configuration errors without drawing a phrase:
// ErrEmptyCorpus when there are no templates and EmptyPoolError for the
// first registered pool without words.
func (c *Corpus) Validate() error {
	if len(c.templates) == 0 {
		return ErrEmptyCorpus
	}
	for _, placeholder := range c.order {
		if len(c.pools[placeholder]) == 0 {
			return &EmptyPoolError{Placeholder: placeholder}
		}
	}
	return nil
}

// Sources names the files a Corpus is loaded from.
type Sources struct {
	// Templates is the template file, one template per line.
	Templates string

	// Pools maps a placeholder such as "[noun]" to its word file.
	Pools map[string]string
}

// Load builds a Corpus from files. Pools are registered in sorted
// placeholder order.
func Load(src Sources) (*Corpus, error) {
	c := NewCorpus()
	if err := c.LoadTemplatesFromFile(src.Templates); err != nil {
		return nil, err
	}

	placeholders := make([]string, 0, len(src.Pools))
	for placeholder := range src.Pools {
		placeholders = append(placeholders, placeholder)
	}
	slices.Sort(placeholders)

	for _, placeholder := range placeholders {
		if err := c.AddPoolFromFile(placeholder, src.Pools[placeholder]); err != nil {
			return nil, err
		}
	}
	return c, nil
}
