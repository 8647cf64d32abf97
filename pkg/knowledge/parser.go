// Package knowledge loads skills and facts documents packaged with an
// agent. Documents carry a YAML frontmatter header; only top-level files
// appear in the inventory, subdirectory files are reachable by explicit
// path reads.
package knowledge

import (
	"bufio"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

// HeaderField is one key/value pair from a document header, in file order.
type HeaderField struct {
	Key   string
	Value string
}

// Document is a parsed knowledge file.
type Document struct {
	Name         string
	Description  string
	RelativePath string
	Header       []HeaderField
	Body         string
}

// HeaderValue returns the header value for key, or "".
func (d *Document) HeaderValue(key string) string {
	for _, field := range d.Header {
		if field.Key == key {
			return field.Value
		}
	}
	return ""
}

// EmitHeader re-serializes the frontmatter block, name first, then
// description, then extras in original order.
func (d *Document) EmitHeader() string {
	var sb strings.Builder
	sb.WriteString(frontmatterDelimiter + "\n")
	sb.WriteString("name: " + d.Name + "\n")
	sb.WriteString("description: " + d.Description + "\n")
	for _, field := range d.Header {
		if field.Key == "name" || field.Key == "description" {
			continue
		}
		sb.WriteString(field.Key + ": " + field.Value + "\n")
	}
	sb.WriteString(frontmatterDelimiter + "\n")
	return sb.String()
}

// Parse splits a knowledge file into frontmatter and body. The header must
// be delimited by "---" lines and carry at least name and description.
func Parse(content, relativePath string) (*Document, error) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != frontmatterDelimiter {
		return nil, fmt.Errorf("%s: missing frontmatter delimiter", relativePath)
	}

	var headerLines []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == frontmatterDelimiter {
			closed = true
			break
		}
		headerLines = append(headerLines, line)
	}
	if !closed {
		return nil, fmt.Errorf("%s: unterminated frontmatter", relativePath)
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", relativePath, err)
	}

	header, err := parseHeader(strings.Join(headerLines, "\n"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", relativePath, err)
	}

	doc := &Document{
		RelativePath: relativePath,
		Header:       header,
		Body:         strings.TrimLeft(strings.Join(bodyLines, "\n"), "\n"),
	}
	doc.Name = doc.HeaderValue("name")
	doc.Description = doc.HeaderValue("description")

	if doc.Name == "" {
		return nil, fmt.Errorf("%s: frontmatter missing required field: name", relativePath)
	}
	if doc.Description == "" {
		return nil, fmt.Errorf("%s: frontmatter missing required field: description", relativePath)
	}

	return doc, nil
}

// parseHeader decodes the YAML mapping preserving key order.
func parseHeader(raw string) ([]HeaderField, error) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &node); err != nil {
		return nil, fmt.Errorf("invalid frontmatter: %w", err)
	}
	if node.Kind != yaml.DocumentNode || len(node.Content) == 0 {
		return nil, fmt.Errorf("invalid frontmatter: empty header")
	}
	mapping := node.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("invalid frontmatter: header is not a mapping")
	}

	fields := make([]HeaderField, 0, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		fields = append(fields, HeaderField{
			Key:   mapping.Content[i].Value,
			Value: mapping.Content[i+1].Value,
		})
	}
	return fields, nil
}
