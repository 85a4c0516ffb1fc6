package compose

import (
	"bytes"
	"html"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/yuin/goldmark"

	"github.com/PulfordJ/lastsignal/internal/channel"
	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
	"github.com/PulfordJ/lastsignal/internal/logfields"
)

// Format is the markup of a template file, derived from its extension.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// DefaultTemplate is written when the configured template file does not exist.
const DefaultTemplate = `This is an automated message from LastSignal.

I have not checked in within the timeframe I set for myself. This message is
being sent as a precaution so that someone can make sure I am safe.

If you are receiving this message, please:

1. Try to contact me through the usual means.
2. If you cannot reach me, consider checking on me in person.
3. Contact emergency services if necessary.

This system was set up for my safety and peace of mind.

Generated at: {timestamp}

LastSignal - Automated Safety System
`

// Template is a parsed message template.
type Template struct {
	Subject string
	Body    string
	Format  Format
}

// FormatFor maps a file path to its template format.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".html", ".htm":
		return FormatHTML
	default:
		return FormatText
	}
}

// Loader reads the message template from disk and caches it until
// invalidated.
type Loader struct {
	path           string
	defaultSubject string
	logger         *slog.Logger

	mu     sync.Mutex
	cached *Template
}

// NewLoader creates a Loader for path. defaultSubject is used when the
// template carries no subject of its own.
func NewLoader(path, defaultSubject string) *Loader {
	return &Loader{path: path, defaultSubject: defaultSubject, logger: slog.Default()}
}

// Path returns the template file path.
func (l *Loader) Path() string { return l.path }

// Invalidate drops the cached template so the next Load rereads the file.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.cached = nil
	l.mu.Unlock()
	l.logger.Debug("Message template cache invalidated", logfields.Path(l.path))
}

// Load returns the template, writing DefaultTemplate first if the file is
// missing.
func (l *Loader) Load() (*Template, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cached != nil {
		return l.cached, nil
	}

	content, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		if err := l.writeDefault(); err != nil {
			return nil, err
		}
		content = []byte(DefaultTemplate)
	} else if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to read message template").
			NextTick().
			WithContext("path", l.path).
			Build()
	}

	fm, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryTemplate, "invalid message template").
			Critical().NextTick().WithContext("path", l.path).Build()
	}
	m, err := parseMeta(fm)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryTemplate, "invalid message template frontmatter").
			Critical().NextTick().WithContext("path", l.path).Build()
	}

	t := &Template{
		Subject: m.Subject,
		Body:    strings.TrimSpace(string(body)),
		Format:  FormatFor(l.path),
	}
	if t.Subject == "" {
		t.Subject = l.defaultSubject
	}
	l.cached = t
	return t, nil
}

func (l *Loader) writeDefault() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to create message template directory").
			NextTick().WithContext("path", l.path).Build()
	}
	if err := os.WriteFile(l.path, []byte(DefaultTemplate), 0o600); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write default message template").
			NextTick().WithContext("path", l.path).Build()
	}
	l.logger.Info("Created default message template", logfields.Path(l.path))
	return nil
}

// Compose loads the template and renders it into a message.
func (l *Loader) Compose(values map[string]string) (channel.Message, error) {
	t, err := l.Load()
	if err != nil {
		return channel.Message{}, err
	}
	msg, err := t.Render(values)
	if err != nil {
		if ce, ok := errors.AsClassified(err); ok {
			err = ce.WithContext("path", l.path)
		}
		return channel.Message{}, err
	}
	return msg, nil
}

// Render fills the template's subject and body.
func (t *Template) Render(values map[string]string) (channel.Message, error) {
	subject, err := Render(t.Subject, values)
	if err != nil {
		return channel.Message{}, err
	}

	switch t.Format {
	case FormatMarkdown:
		body, err := Render(t.Body, values)
		if err != nil {
			return channel.Message{}, err
		}
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(body), &buf); err != nil {
			return channel.Message{}, errors.WrapError(err, errors.CategoryTemplate, "failed to render markdown template").
				Critical().NextTick().Build()
		}
		return channel.Message{Subject: subject, Body: body, HTML: buf.String()}, nil

	case FormatHTML:
		escaped := make(map[string]string, len(values))
		for k, v := range values {
			escaped[k] = html.EscapeString(v)
		}
		markup, err := Render(t.Body, escaped)
		if err != nil {
			return channel.Message{}, err
		}
		text, err := htmlToText(markup)
		if err != nil {
			return channel.Message{}, errors.WrapError(err, errors.CategoryTemplate, "failed to convert HTML template to text").
				Critical().NextTick().Build()
		}
		return channel.Message{Subject: subject, Body: text, HTML: markup}, nil

	default:
		body, err := Render(t.Body, values)
		if err != nil {
			return channel.Message{}, err
		}
		return channel.Message{Subject: subject, Body: body}, nil
	}
}
