package compose

import (
	"bytes"
	stderrors "errors"

	"gopkg.in/yaml.v3"
)

var errMissingClosingDelimiter = stderrors.New("frontmatter start delimiter found but closing delimiter is missing")

// meta is the frontmatter a template may carry.
type meta struct {
	Subject string `yaml:"subject"`
}

// splitFrontmatter separates `---` delimited YAML frontmatter from the body.
// Content without a leading delimiter is returned whole as the body.
func splitFrontmatter(content []byte) (fm []byte, body []byte, err error) {
	nl := "\n"
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		nl = "\r\n"
	}

	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, nil
	}
	rest := content[len(open):]
	if bytes.HasPrefix(rest, open) {
		return nil, rest[len(open):], nil
	}

	closing := []byte(nl + "---" + nl)
	idx := bytes.Index(rest, closing)
	if idx < 0 {
		// a closing delimiter at EOF has no trailing newline
		if bytes.HasSuffix(rest, []byte(nl+"---")) {
			return rest[:len(rest)-len(nl)-3], nil, nil
		}
		return nil, nil, errMissingClosingDelimiter
	}
	return rest[:idx], rest[idx+len(closing):], nil
}

func parseMeta(fm []byte) (meta, error) {
	var m meta
	if len(bytes.TrimSpace(fm)) == 0 {
		return m, nil
	}
	err := yaml.Unmarshal(fm, &m)
	return m, err
}
