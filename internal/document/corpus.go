package document

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

// ErrCorpusNotFound is returned when the corpus directory does not exist or
// contains no readable documents.
var ErrCorpusNotFound = errors.New("corpus not found")

// Document is one readable file of a corpus with its extracted text.
type Document struct {
	Filename string
	Path     string
	Text     string
	// Hash is the Fingerprint of the file bytes as stored on disk, taken
	// before frontmatter removal or PDF text extraction.
	Hash string
}

// ContentHash returns Hash, or the fingerprint of Text for documents that
// were not read from disk.
func (d Document) ContentHash() string {
	if d.Hash != "" {
		return d.Hash
	}
	return Fingerprint(d.Text)
}

// LoadCorpus reads every supported file directly inside dir, sorted by name.
// Hidden entries and subdirectories are skipped, as are files of unsupported
// type or that fail to read.
func LoadCorpus(dir string) ([]Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrCorpusNotFound, dir)
		}
		return nil, fmt.Errorf("document: stat corpus %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrCorpusNotFound, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("document: read corpus %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var docs []Document
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)

		text, raw, err := readFile(path)
		if err != nil {
			if errors.Is(err, errUnsupported) {
				slog.Debug("document: skipping unsupported file", "file", name, "error", err)
			} else {
				slog.Warn("document: skipping unreadable file", "file", name, "error", err)
			}
			continue
		}
		docs = append(docs, Document{Filename: name, Path: path, Text: text, Hash: Fingerprint(string(raw))})
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no readable documents in %s", ErrCorpusNotFound, dir)
	}
	return docs, nil
}

var errUnsupported = errors.New("unsupported document type")

// ReadFile returns the text of a single document. Text types are read
// verbatim, except Markdown notes which lose their frontmatter and wiki-link
// brackets; PDFs are reduced to the plain text of their pages.
func ReadFile(path string) (string, error) {
	text, _, err := readFile(path)
	return text, err
}

// readFile returns the text of path together with the bytes it came from.
func readFile(path string) (string, []byte, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", nil, err
	}
	if !mtype.Is("application/pdf") && !isText(mtype) {
		return "", nil, fmt.Errorf("%w: %s", errUnsupported, mtype.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	var text string
	switch {
	case mtype.Is("application/pdf"):
		text, err = readPDF(path)
	case isMarkdown(path):
		text, err = cleanMarkdown(string(data))
	default:
		text = string(data)
	}
	if err != nil {
		return "", nil, err
	}
	return text, data, nil
}

func isText(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "text/") {
			return true
		}
	}
	return false
}

func readPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}
