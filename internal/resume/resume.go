// Package resume extracts plain text from a PDF résumé so it can seed the
// skills field of a profile.
package resume

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// MaxSkillsChars caps the text kept for the skills field.
const MaxSkillsChars = 4000

// ErrNoText is returned for PDFs without an extractable text layer.
var ErrNoText = errors.New("resume has no extractable text")

// ExtractText returns the plain text of the PDF in r.
func ExtractText(r io.ReaderAt, size int64) (text string, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("parsing pdf: %v", p)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	text = Normalize(buf.String())
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// ExtractFile is ExtractText for a file on disk.
func ExtractFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	return ExtractText(f, info.Size())
}

// Normalize collapses runs of whitespace and trims the result to
// MaxSkillsChars without splitting a UTF-8 sequence.
func Normalize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= MaxSkillsChars {
		return s
	}
	s = s[:MaxSkillsChars]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return strings.TrimSpace(s)
}
