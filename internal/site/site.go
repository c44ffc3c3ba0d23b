// Package site holds the static marketing copy of the public pages.
package site

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed content.yaml
var contentYAML []byte

type Item struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type NavLink struct {
	Path  string `yaml:"path"`
	Label string `yaml:"label"`
}

type PageMeta struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Keywords    string `yaml:"keywords"`
}

type Founder struct {
	Name  string `yaml:"name"`
	Title string `yaml:"title"`
	Quote string `yaml:"quote"`
}

type Brand struct {
	Name    string  `yaml:"name"`
	Tagline string  `yaml:"tagline"`
	Founder Founder `yaml:"founder"`
	About   string  `yaml:"about"`
	Hours   string  `yaml:"hours"`
}

type Content struct {
	Brand      Brand               `yaml:"brand"`
	Nav        []NavLink           `yaml:"nav"`
	Pages      map[string]PageMeta `yaml:"pages"`
	Highlights []string            `yaml:"highlights"`
	Categories []Item              `yaml:"categories"`
	Services   []Item              `yaml:"services"`
	Steps      []Item              `yaml:"steps"`
	Trust      []Item              `yaml:"trust"`
	RateNotes  []string            `yaml:"rate_notes"`
}

// Pages that must carry metadata.
var Pages = []string{"home", "services", "how-it-works", "rate-card", "contact", "admin", "rider"}

// Load parses the embedded content.
func Load() (*Content, error) {
	return Parse(contentYAML)
}

func Parse(data []byte) (*Content, error) {
	var c Content
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse site content: %w", err)
	}
	for _, p := range Pages {
		if c.Pages[p].Title == "" {
			return nil, fmt.Errorf("site content: page %q has no title", p)
		}
	}
	return &c, nil
}

// Meta returns the metadata of page.
func (c *Content) Meta(page string) PageMeta { return c.Pages[page] }
