// Package frontmatter splits and renders YAML frontmatter in markdown files.
package frontmatter

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// Split separates the frontmatter block from the body. Content without a
// leading "---" line has no metadata and is returned whole as the body.
func Split(content string) (map[string]interface{}, string, error) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(normalized, delimiter+"\n") {
		return map[string]interface{}{}, content, nil
	}

	rest := normalized[len(delimiter)+1:]
	end := -1
	offset := 0
	for _, line := range strings.SplitAfter(rest, "\n") {
		if strings.TrimRight(line, "\n") == delimiter {
			end = offset
			break
		}
		offset += len(line)
	}
	if end < 0 {
		// Unterminated block, treat as plain text
		return map[string]interface{}{}, content, nil
	}

	raw := rest[:end]
	body := strings.TrimPrefix(rest[end+len(delimiter):], "\n")

	meta := map[string]interface{}{}
	if strings.TrimSpace(raw) != "" {
		if err := yaml.Unmarshal([]byte(raw), &meta); err != nil {
			return map[string]interface{}{}, content, fmt.Errorf("parsing frontmatter: %w", err)
		}
	}
	return normalize(meta).(map[string]interface{}), body, nil
}

// Parse returns only the metadata of content.
func Parse(content string) (map[string]interface{}, error) {
	meta, _, err := Split(content)
	return meta, err
}

// Render writes meta as a frontmatter block followed by body. An empty meta
// renders the body alone.
func Render(meta map[string]interface{}, body string) (string, error) {
	if len(meta) == 0 {
		return body, nil
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(meta); err != nil {
		return "", fmt.Errorf("encoding frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return delimiter + "\n" + buf.String() + delimiter + "\n" + body, nil
}

// normalize turns yaml.v3's map[string]interface{} / map[interface{}]interface{}
// mix into plain string-keyed maps so values round-trip through JSON.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []interface{}:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	default:
		return v
	}
}
