package quizstream

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// MaxReferenceChars caps reference material sent with every chunk request
const MaxReferenceChars = 8000

var ErrNoReferenceText = errors.New("no extractable text in reference")

// ExtractPDFText returns the plain text of a PDF for use as reference material,
// truncated to maxChars runes when maxChars is positive.
func ExtractPDFText(path string, maxChars int) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}

	text := TrimReference(buf.String(), maxChars)
	if text == "" {
		return "", ErrNoReferenceText
	}
	return text, nil
}

// TrimReference collapses whitespace and control characters and truncates to
// maxChars runes
func TrimReference(text string, maxChars int) string {
	text = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, text)
	text = strings.Join(strings.Fields(text), " ")

	if maxChars > 0 {
		runes := []rune(text)
		if len(runes) > maxChars {
			text = strings.TrimSpace(string(runes[:maxChars]))
		}
	}
	return text
}
