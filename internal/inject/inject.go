// Package inject adds the reload client to HTML documents.
//
// Documents are tokenized rather than searched as text so that a "<head>"
// inside a comment, script or attribute is never mistaken for the element.
// The original encoding is kept: ASCII-compatible documents are patched in
// place and UTF-16 documents are decoded, patched and encoded again.
package inject

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// prescanLimit matches the HTML encoding sniffing window.
const prescanLimit = 1024

// Result is an injected document.
type Result struct {
	// Body is the document to send.
	Body []byte
	// Charset is the encoding label for the Content-Type header.
	Charset string
	// Injected is false when the document has no head and Body is the
	// original document.
	Injected bool
}

// Injector inserts a fixed script into documents.
type Injector struct {
	script []byte
}

// New returns an injector for the reload client with selectors.
func New(selectors []string) *Injector {
	return &Injector{script: Script(selectors)}
}

// NewWithScript returns an injector inserting script verbatim.
func NewWithScript(script []byte) *Injector {
	return &Injector{script: append([]byte(nil), script...)}
}

// Inject returns doc with the script appended to its first head element.
// contentType may carry a charset parameter; it is consulted after any byte
// order mark and before the document's own meta declaration.
func (i *Injector) Inject(doc []byte, contentType string) Result {
	enc, name, certain := charset.DetermineEncoding(doc, contentType)
	label := charsetLabel(doc, name, certain)

	if !asciiCompatible(name) {
		return i.injectTranscoded(doc, enc, label)
	}

	at, ok := insertionPoint(doc)
	if !ok {
		return Result{Body: doc, Charset: label}
	}
	return Result{Body: splice(doc, at, i.script), Charset: label, Injected: true}
}

// injectTranscoded handles encodings whose markup bytes are not ASCII.
func (i *Injector) injectTranscoded(doc []byte, enc encoding.Encoding, label string) Result {
	decoded, _, err := transform.Bytes(enc.NewDecoder(), doc)
	if err != nil {
		return Result{Body: doc, Charset: label}
	}

	at, ok := insertionPoint(decoded)
	if !ok {
		return Result{Body: doc, Charset: label}
	}

	encoded, _, err := transform.Bytes(enc.NewEncoder(), splice(decoded, at, i.script))
	if err != nil {
		return Result{Body: doc, Charset: label}
	}
	return Result{Body: encoded, Charset: label, Injected: true}
}

// insertionPoint finds the byte offset of the first head end tag, or the end
// of the first head start tag when the end tag is missing.
func insertionPoint(doc []byte) (int, bool) {
	z := html.NewTokenizer(bytes.NewReader(doc))
	offset := 0
	afterHead := -1

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		start := offset
		offset += len(z.Raw())

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if afterHead < 0 && string(name) == "head" {
				afterHead = offset
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if afterHead >= 0 && string(name) == "head" {
				return start, true
			}
		}
	}

	if afterHead >= 0 {
		return afterHead, true
	}
	return 0, false
}

func splice(doc []byte, at int, insert []byte) []byte {
	out := make([]byte, 0, len(doc)+len(insert))
	out = append(out, doc[:at]...)
	out = append(out, insert...)
	return append(out, doc[at:]...)
}

func asciiCompatible(name string) bool {
	return !strings.HasPrefix(name, "utf-16")
}

// charsetLabel reports utf-8 for plain ASCII documents that declare nothing,
// where the sniffing fallback would otherwise say windows-1252.
func charsetLabel(doc []byte, name string, certain bool) string {
	if certain || name != "windows-1252" {
		return name
	}
	prefix := doc
	if len(prefix) > prescanLimit {
		prefix = prefix[:prescanLimit]
	}
	if bytes.Contains(bytes.ToLower(prefix), []byte("charset")) {
		return name
	}
	for _, b := range doc {
		if b >= 0x80 {
			return name
		}
	}
	return "utf-8"
}
