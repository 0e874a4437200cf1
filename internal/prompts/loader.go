package prompts

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"
)

//go:embed *.md
var promptFS embed.FS

// Template names shipped with the binary.
const (
	ExtractActionItems = "extract_action_items"
	SummarizeMeeting   = "summarize_meeting"
)

// PromptTemplate represents a prompt template with metadata
type PromptTemplate struct {
	Name    string
	Content string
}

// Loader handles loading and rendering prompt templates
type Loader struct {
	templates map[string]*PromptTemplate
}

// NewLoader reads every embedded template.
func NewLoader() (*Loader, error) {
	loader := &Loader{templates: make(map[string]*PromptTemplate)}

	entries, err := promptFS.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("read prompts directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		content, err := promptFS.ReadFile(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read prompt file %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), ".md")
		loader.templates[name] = &PromptTemplate{
			Name:    name,
			Content: strings.TrimRight(string(content), "\r\n"),
		}
	}
	return loader, nil
}

var (
	defaultOnce   sync.Once
	defaultLoader *Loader
	defaultErr    error
)

// Default returns a process-wide loader over the embedded templates.
func Default() (*Loader, error) {
	defaultOnce.Do(func() {
		defaultLoader, defaultErr = NewLoader()
	})
	return defaultLoader, defaultErr
}

// Get returns a prompt template by name
func (l *Loader) Get(name string) (*PromptTemplate, error) {
	template, exists := l.templates[name]
	if !exists {
		return nil, fmt.Errorf("prompt template '%s' not found", name)
	}
	return template, nil
}

// Render substitutes {{key}} placeholders. Unknown placeholders are left
// untouched.
func (l *Loader) Render(name string, variables map[string]string) (string, error) {
	template, err := l.Get(name)
	if err != nil {
		return "", err
	}

	content := template.Content
	for key, value := range variables {
		content = strings.ReplaceAll(content, "{{"+key+"}}", value)
	}
	return content, nil
}

// Names returns all available template names, sorted.
func (l *Loader) Names() []string {
	names := make([]string, 0, len(l.templates))
	for name := range l.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
