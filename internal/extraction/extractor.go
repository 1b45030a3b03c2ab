// Package extraction converts uploaded document bytes into plain text.
//
// The content type is sniffed from the bytes, never trusted from the
// filename. Anything that yields no text after extraction is rejected
// with ErrNoExtractableText so the caller can surface a correctable
// message to the uploader.
package extraction

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// ErrNoExtractableText indicates the document produced no usable text.
// The message is shown to the uploader as-is.
var ErrNoExtractableText = errors.New(
	"no extractable text found: the document may be a scanned image, encrypted, or in an unsupported format")

// Extractor turns raw document bytes into plain text.
type Extractor struct {
	logger *zap.Logger
}

// New creates an Extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract sniffs the content type of data and returns its plain text.
// The filename is used only for logging.
func (e *Extractor) Extract(data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", ErrNoExtractableText
	}

	mtype := mimetype.Detect(data)
	e.logger.Debug("detected content type",
		zap.String("filename", filename),
		zap.String("mime", mtype.String()))

	var (
		text string
		err  error
	)
	switch {
	case mtype.Is("application/pdf"):
		text, err = extractPDF(data)
	case mtype.Is("text/html") || mtype.Is("application/xhtml+xml"):
		text, err = extractHTML(data)
	case mtype.Is("text/xml") || mtype.Is("application/xml"):
		text, err = extractXML(data)
	case isTextual(mtype):
		text, err = decodeText(data)
	default:
		return "", fmt.Errorf("%w (type %s)", ErrNoExtractableText, mtype.String())
	}
	if err != nil {
		e.logger.Warn("extraction failed",
			zap.String("filename", filename),
			zap.String("mime", mtype.String()),
			zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrNoExtractableText, err)
	}

	if strings.TrimSpace(text) == "" {
		return "", ErrNoExtractableText
	}
	return text, nil
}

// isTextual reports whether the detected type is text/plain or derived
// from it, e.g. text/csv, application/json.
func isTextual(mtype *mimetype.MIME) bool {
	for t := mtype; t != nil; t = t.Parent() {
		if t.Is("text/plain") {
			return true
		}
	}
	return false
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, textReader); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return buf.String(), nil
}

// extractHTML strips markup, skipping script and style bodies. Block-level
// boundaries become newlines so the splitter sees paragraph structure.
func extractHTML(data []byte) (string, error) {
	decoded, err := decodeText(data)
	if err != nil {
		return "", err
	}

	tokenizer := html.NewTokenizer(strings.NewReader(decoded))
	var sb strings.Builder
	skipDepth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if errors.Is(tokenizer.Err(), io.EOF) {
				return sb.String(), nil
			}
			return "", fmt.Errorf("parsing html: %w", tokenizer.Err())
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				skipDepth++
			case "p", "div", "br", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6":
				sb.WriteByte('\n')
			}
		case html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "br", "hr", "p", "div", "li", "tr":
				sb.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				if skipDepth > 0 {
					skipDepth--
				}
			case "p", "div", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6":
				sb.WriteByte('\n')
			}
		case html.TextToken:
			if skipDepth == 0 {
				sb.Write(tokenizer.Text())
			}
		}
	}
}

// extractXML collects character data from all elements in document order.
func extractXML(data []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.CharsetReader = func(cs string, input io.Reader) (io.Reader, error) {
		return charset.NewReaderLabel(cs, input)
	}
	var sb strings.Builder
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("parsing xml: %w", err)
		}
		if cd, ok := token.(xml.CharData); ok {
			sb.Write(cd)
			sb.WriteByte(' ')
		}
	}
}

// decodeText converts arbitrary text bytes to UTF-8, sniffing the source
// encoding. Valid UTF-8 passes through unchanged.
func decodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	enc, _, _ := charset.DetermineEncoding(data, "")
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("decoding text: %w", err)
	}
	if !utf8.Valid(decoded) {
		return "", errors.New("undecodable byte sequence")
	}
	return string(decoded), nil
}
