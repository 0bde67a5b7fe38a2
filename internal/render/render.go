// Package render serializes protocol response envelopes as XML or JSON.
//
// An envelope is an [ordered.Map] whose single top-level key names the
// response document, for example PublishResponse. Key order is kept in both
// encodings.
package render

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zauberware/smshog/internal/jsoncodec"
	"github.com/zauberware/smshog/internal/ordered"
)

// Namespace is the XML namespace of every SNS response document.
const Namespace = "http://sns.amazonaws.com/doc/2010-03-31/"

// defaultRoot wraps envelopes that do not have exactly one top-level key.
const defaultRoot = "root"

// namespacedRoots are checked in order; only the first match is rewritten.
var namespacedRoots = []string{
	"PublishResponse",
	"SetSMSAttributesResponse",
	"ErrorResponse",
}

// XML encodes env as an indented XML document with an XML declaration.
//
// Keys starting with '@' lose the marker and "@xmlns" is dropped entirely;
// the SNS namespace is added to the opening tag of the response element
// instead. Slices repeat their parent element once per item.
func XML(env ordered.Map) ([]byte, error) {
	clean := stripMarkers(env)

	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	var err error
	if len(clean) == 1 {
		err = encodeElement(enc, clean[0].Key, clean[0].Value)
	} else {
		err = encodeElement(enc, defaultRoot, clean)
	}
	if err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}

	return []byte(injectNamespace(buf.String())), nil
}

// JSON encodes env as a JSON object in key order.
func JSON(env ordered.Map) ([]byte, error) {
	if env == nil {
		env = ordered.Map{}
	}
	return jsoncodec.Marshal(env)
}

func injectNamespace(doc string) string {
	for _, name := range namespacedRoots {
		open := "<" + name + ">"
		if strings.Contains(doc, open) {
			return strings.Replace(doc, open, "<"+name+` xmlns="`+Namespace+`">`, 1)
		}
	}
	return doc
}

func stripMarkers(m ordered.Map) ordered.Map {
	out := make(ordered.Map, 0, len(m))
	for _, p := range m {
		if p.Key == "@xmlns" {
			continue
		}
		out = append(out, ordered.Pair{
			Key:   strings.TrimPrefix(p.Key, "@"),
			Value: stripValue(p.Value),
		})
	}
	return out
}

func stripValue(v any) any {
	switch t := v.(type) {
	case ordered.Map:
		return stripMarkers(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = stripValue(item)
		}
		return out
	default:
		return v
	}
}

func encodeElement(enc *xml.Encoder, name string, value any) error {
	if items, ok := value.([]any); ok {
		for _, item := range items {
			if err := encodeElement(enc, name, item); err != nil {
				return err
			}
		}
		return nil
	}

	if !validName(name) {
		return fmt.Errorf("invalid element name %q", name)
	}
	start := xml.StartElement{Name: xml.Name{Local: name}}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}

	switch t := value.(type) {
	case ordered.Map:
		for _, p := range t {
			if err := encodeElement(enc, p.Key, p.Value); err != nil {
				return err
			}
		}
	case nil:
	default:
		text, err := scalarText(t)
		if err != nil {
			return fmt.Errorf("element %s: %w", name, err)
		}
		if err := enc.EncodeToken(xml.CharData(text)); err != nil {
			return err
		}
	}

	return enc.EncodeToken(start.End())
}

func scalarText(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		return "", fmt.Errorf("unsupported value of type %T", v)
	}
}

// validName reports whether s is usable as an XML element name. Colons are
// rejected because the encoder has no namespace prefixes to bind them to.
func validName(s string) bool {
	if s == "" || strings.HasPrefix(strings.ToLower(s), "xml") {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (r == '-' || r == '.' || unicode.IsDigit(r)):
		default:
			return false
		}
	}
	return utf8.ValidString(s)
}

// Renderer writes envelopes to HTTP responses.
type Renderer struct {
	logger *slog.Logger
}

// New creates a Renderer. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{logger: logger}
}

// Write encodes env in format f and writes it with the given status.
//
// A response is always written. If encoding fails, Write logs the error and
// sends a 500 plain-text body naming it instead.
func (r *Renderer) Write(w http.ResponseWriter, f Format, status int, env ordered.Map) {
	var (
		body []byte
		err  error
	)
	if f == JSON {
		body, err = JSON(env)
	} else {
		body, err = XML(env)
	}

	if err != nil {
		r.logger.Error("failed to render response", "format", f.String(), "error", err)
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = fmt.Fprintf(w, "Error generating %s response. Error: %s", strings.ToUpper(f.String()), err)
		return
	}

	w.Header().Set("Content-Type", f.ContentType())
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		r.logger.Debug("failed to write response", "error", err)
	}
}
