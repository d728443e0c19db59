package prompt

import (
	"errors"
	"strings"
	"testing"
)

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestEveryToolRenders(t *testing.T) {
	g := newTestGenerator(t)

	headings := map[string]string{
		"sora":      "Here is your optimized Sora prompt:",
		"runway":    "Here is your optimized Runway prompt:",
		"pika":      "Here is your optimized Pika prompt:",
		"scene":     "Scene Breakdown for: a fox in the snow",
		"thumbnail": "Here is your optimized thumbnail prompt:",
		"viral":     "Here is your optimized viral video concept:",
	}

	tools := g.Tools()
	if len(tools) != len(headings) {
		t.Fatalf("catalog has %d tools, want %d", len(tools), len(headings))
	}
	for _, tool := range tools {
		t.Run(tool.ID, func(t *testing.T) {
			out, err := g.Generate(tool.ID, "a fox in the snow")
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if !strings.HasPrefix(out, headings[tool.ID]) {
				t.Errorf("unexpected heading: %q", strings.SplitN(out, "\n", 2)[0])
			}
			if !strings.Contains(out, "a fox in the snow") {
				t.Error("idea not interpolated")
			}
			if strings.Contains(out, "{{") {
				t.Error("template placeholder left in output")
			}
		})
	}
}

func TestGenerateSanitizesIdea(t *testing.T) {
	g := newTestGenerator(t)

	out, err := g.Generate("sora", `<script>alert(1)</script><b>Tom & Jerry</b> chase`)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "<script>") || strings.Contains(out, "<b>") {
		t.Errorf("markup survived: %q", out)
	}
	if !strings.Contains(out, "• Tom & Jerry chase") {
		t.Errorf("text content mangled: %q", out)
	}
}

func TestGenerateErrors(t *testing.T) {
	g := newTestGenerator(t)

	tests := []struct {
		name, tool, idea string
		want             error
	}{
		{"unknown tool", "veo", "idea", ErrUnknownTool},
		{"empty idea", "sora", "", ErrEmptyIdea},
		{"whitespace idea", "sora", "  \n\t ", ErrEmptyIdea},
		{"markup only", "sora", "<img src=x>", ErrEmptyIdea},
		{"too long", "sora", strings.Repeat("é", MaxIdeaRunes+1), ErrIdeaTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Generate(tt.tool, tt.idea)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := g.Generate("sora", strings.Repeat("é", MaxIdeaRunes)); err != nil {
		t.Errorf("idea at the limit rejected: %v", err)
	}
}

func TestLookup(t *testing.T) {
	g := newTestGenerator(t)

	tool, ok := g.Lookup("viral")
	if !ok {
		t.Fatal("viral not found")
	}
	if tool.Name != "Viral Video Idea Generator" {
		t.Errorf("Name: got %q", tool.Name)
	}
	if _, ok := g.Lookup("nope"); ok {
		t.Error("unexpected match for unknown tool")
	}
}

func TestToolsReturnsCopy(t *testing.T) {
	g := newTestGenerator(t)
	tools := g.Tools()
	tools[0].Name = "changed"
	if g.Tools()[0].Name == "changed" {
		t.Error("Tools exposes the internal catalog")
	}
}
