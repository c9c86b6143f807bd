// Package render turns template names and alert data into channel
// bodies. It is the engine's template collaborator; senders fall back
// to a literal rendering when it fails.
package render

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"sync"
	texttemplate "text/template"
)

// Format selects the output flavor of a rendered template.
type Format string

const (
	FormatPlain Format = "plain"
	FormatHTML  Format = "html"
	FormatChat  Format = "chat"
)

// Renderer produces a message body for one (template, data, format)
// triple.
type Renderer interface {
	Render(name string, data map[string]any, format Format) (string, error)
}

type templateSet struct {
	text *texttemplate.Template
	html *htmltemplate.Template
}

// Store compiles and renders named templates. Plain and chat formats
// share the text variant; the html format uses html/template so data
// values are escaped.
type Store struct {
	mu        sync.RWMutex
	templates map[string]templateSet
}

// NewStore returns an empty template store.
func NewStore() *Store {
	return &Store{templates: make(map[string]templateSet)}
}

// Register adds or replaces a template definition, compiling both the
// text and html variants.
func (s *Store) Register(name, body string) error {
	text, err := texttemplate.New(name).Parse(body)
	if err != nil {
		return fmt.Errorf("parse template %s: %w", name, err)
	}
	html, err := htmltemplate.New(name).Parse(body)
	if err != nil {
		return fmt.Errorf("parse html template %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[name] = templateSet{text: text, html: html}
	return nil
}

// Render executes the named template with data in the requested format.
func (s *Store) Render(name string, data map[string]any, format Format) (string, error) {
	s.mu.RLock()
	set, ok := s.templates[name]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template %s not found", name)
	}

	var out strings.Builder
	var err error
	if format == FormatHTML {
		err = set.html.Execute(&out, data)
	} else {
		err = set.text.Execute(&out, data)
	}
	if err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return out.String(), nil
}

// Fallback builds a minimal literal body for when rendering fails:
// a bare title/message header plus the data dumped as JSON.
func Fallback(title, message string, data map[string]any) string {
	var out strings.Builder
	out.WriteString("Alert: " + title + "\n" + message)
	if len(data) > 0 {
		if encoded, err := json.Marshal(data); err == nil {
			out.WriteString("\n" + string(encoded))
		}
	}
	return out.String()
}
