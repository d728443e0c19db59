// Package prompt fills the per-tool prompt templates with a user's video idea.
package prompt

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxIdeaRunes bounds the length of a sanitized idea.
const MaxIdeaRunes = 2000

var (
	ErrUnknownTool = errors.New("unknown tool")
	ErrEmptyIdea   = errors.New("video idea is required")
	ErrIdeaTooLong = fmt.Errorf("video idea must be at most %d characters", MaxIdeaRunes)
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Tool describes one generator in the catalog.
type Tool struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var catalog = []Tool{
	{ID: "sora", Name: "Sora Prompt Generator", Description: "Cinematic, physically accurate text-to-video prompts for Sora."},
	{ID: "runway", Name: "Runway Prompt Generator", Description: "Stylized, edit-friendly prompts for Runway Gen-2/Gen-3."},
	{ID: "pika", Name: "Pika Prompt Generator", Description: "Character-driven animation prompts for Pika Labs."},
	{ID: "scene", Name: "Scene Breakdown Generator", Description: "A shot-by-shot breakdown of a video idea."},
	{ID: "thumbnail", Name: "Thumbnail Prompt Generator", Description: "Click-worthy thumbnail image prompts."},
	{ID: "viral", Name: "Viral Video Idea Generator", Description: "Short-form concepts for TikTok, Reels and Shorts."},
}

// Generator renders prompts for the catalog tools.
type Generator struct {
	templates *template.Template
	policy    *bluemonday.Policy
}

// New parses the embedded templates. Every catalog tool must have one.
func New() (*Generator, error) {
	tmpl, err := template.New("prompts").Option("missingkey=error").ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	for _, t := range catalog {
		if tmpl.Lookup(t.ID+".tmpl") == nil {
			return nil, fmt.Errorf("missing template for tool %q", t.ID)
		}
	}
	return &Generator{
		templates: tmpl,
		policy:    bluemonday.StrictPolicy(),
	}, nil
}

// Tools returns the catalog in display order.
func (g *Generator) Tools() []Tool {
	out := make([]Tool, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the catalog entry for id.
func (g *Generator) Lookup(id string) (Tool, bool) {
	for _, t := range catalog {
		if t.ID == id {
			return t, true
		}
	}
	return Tool{}, false
}

// Validate checks tool and idea without rendering. It returns the cleaned idea.
func (g *Generator) Validate(tool, idea string) (string, error) {
	if _, ok := g.Lookup(tool); !ok {
		return "", ErrUnknownTool
	}
	return g.clean(idea)
}

// Generate renders the prompt for tool with idea interpolated. Markup is
// stripped from the idea before use.
func (g *Generator) Generate(tool, idea string) (string, error) {
	cleaned, err := g.Validate(tool, idea)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := g.templates.ExecuteTemplate(&buf, tool+".tmpl", struct{ Idea string }{cleaned}); err != nil {
		return "", fmt.Errorf("render %s: %w", tool, err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func (g *Generator) clean(idea string) (string, error) {
	// StrictPolicy escapes entities; the output is plain text, so undo that.
	s := strings.TrimSpace(html.UnescapeString(g.policy.Sanitize(idea)))
	if s == "" {
		return "", ErrEmptyIdea
	}
	if utf8.RuneCountInString(s) > MaxIdeaRunes {
		return "", ErrIdeaTooLong
	}
	return s, nil
}
