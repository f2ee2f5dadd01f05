// Package fileparse downloads uploaded world-setting documents and extracts
// their text. Only a small allow-list of extensions is recognized.
package fileparse

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

const (
	downloadTimeout = 30 * time.Second
	maxFileSize     = 10 << 20
)

var (
	ErrUnsupported = errors.New("unsupported file type (use .txt, .md or .docx)")
	ErrDownload    = errors.New("download failed")
	ErrEmpty       = errors.New("document is empty")
	ErrEncoding    = errors.New("could not determine text encoding")
)

type Parser struct {
	client *http.Client
}

func New() *Parser {
	return &Parser{client: &http.Client{Timeout: downloadTimeout}}
}

// ParseFile fetches url and extracts text according to the file extension.
func (p *Parser) ParseFile(ctx context.Context, url, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".md", ".docx":
	default:
		return "", ErrUnsupported
	}

	content, err := p.download(ctx, url)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.fileparse").Str("url", url).Msg("download failed")
		return "", ErrDownload
	}

	if ext == ".docx" {
		return parseDocx(content)
	}
	return parseText(content)
}

func (p *Parser) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFileSize))
}

// decoders is the fallback chain for plain-text files, mirroring the common
// encodings of user-submitted documents.
var decoders = []struct {
	name string
	dec  *encoding.Decoder
}{
	{"gbk", simplifiedchinese.GBK.NewDecoder()},
	{"utf-16", unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()},
	{"latin-1", charmap.ISO8859_1.NewDecoder()},
}

func parseText(content []byte) (string, error) {
	if utf8.Valid(content) {
		text := strings.TrimSpace(string(content))
		if text == "" {
			return "", ErrEmpty
		}
		return text, nil
	}
	for _, d := range decoders {
		out, err := d.dec.Bytes(content)
		if err != nil {
			continue
		}
		text := strings.TrimSpace(string(out))
		// The decoders substitute U+FFFD instead of failing; treat any
		// substitution as a wrong-encoding guess and try the next one.
		if text == "" || strings.ContainsRune(text, utf8.RuneError) {
			continue
		}
		return text, nil
	}
	return "", ErrEncoding
}

// docx is a zip archive; the paragraphs live in word/document.xml. There is
// no need for a full OOXML reader just to pull plain text out.
func parseDocx(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("not a valid docx: %w", err)
	}

	var doc io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc, err = f.Open()
			if err != nil {
				return "", fmt.Errorf("read docx body: %w", err)
			}
			break
		}
	}
	if doc == nil {
		return "", errors.New("docx has no document body")
	}
	defer doc.Close()

	paragraphs, err := extractParagraphs(doc)
	if err != nil {
		return "", fmt.Errorf("parse docx body: %w", err)
	}
	if len(paragraphs) == 0 {
		return "", ErrEmpty
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

// extractParagraphs walks the WordprocessingML token stream, collecting the
// character data of every <w:t> run and flushing a paragraph at each </w:p>.
func extractParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(current.String()); s != "" {
					paragraphs = append(paragraphs, s)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}
