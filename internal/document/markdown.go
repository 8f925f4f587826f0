package document

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// wikilinkRe matches [[target]] and [[target|alias]].
var wikilinkRe = regexp.MustCompile(`\[\[([^\[\]|]+?)(?:\|([^\[\]]+?))?\]\]`)

// isMarkdown reports whether path names a Markdown note by extension.
// mimetype reports these as text/plain so the extension decides.
func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// cleanMarkdown prepares a Markdown note for extraction. YAML frontmatter is
// dropped, except for a title which is kept as a leading sentence, and
// [[wiki-links]] are replaced by their alias or target.
func cleanMarkdown(text string) (string, error) {
	fm, body, err := splitFrontmatter(text)
	if err != nil {
		return "", err
	}

	body = strings.TrimSpace(stripWikiLinks(body))
	if title, ok := fm["title"].(string); ok && strings.TrimSpace(title) != "" {
		title = strings.TrimSpace(title)
		if !strings.HasPrefix(body, "# "+title) {
			body = strings.TrimSpace("# " + title + "\n\n" + body)
		}
	}
	return body, nil
}

// splitFrontmatter separates YAML frontmatter between --- lines from the
// body. Text without a complete frontmatter block is returned whole.
func splitFrontmatter(text string) (map[string]interface{}, string, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return nil, text, nil
	}

	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		return nil, text, nil
	}

	fm := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:closeIdx], "\n")), &fm); err != nil {
		return nil, "", fmt.Errorf("invalid frontmatter: %w", err)
	}
	return fm, strings.Join(lines[closeIdx+1:], "\n"), nil
}

func stripWikiLinks(content string) string {
	return wikilinkRe.ReplaceAllStringFunc(content, func(match string) string {
		parts := wikilinkRe.FindStringSubmatch(match)
		if alias := strings.TrimSpace(parts[2]); alias != "" {
			return alias
		}
		return strings.TrimSpace(parts[1])
	})
}
