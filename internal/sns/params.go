package sns

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/zauberware/smshog/internal/ordered"
)

// maxBodyBytes bounds request bodies. SNS itself caps a publish at 256 KiB.
const maxBodyBytes = 1 << 20

// RawAttributesKey holds a MessageAttributes string that is not a JSON object.
const RawAttributesKey = "Raw"

const (
	messageAttributeEntryPrefix = "MessageAttributes.entry."
	smsAttributeEntryPrefix     = "attributes.entry."
)

// Params holds the fields of one protocol request.
//
// Every lookup prefers the query string. The body is the fallback for each
// field on its own, so a request may carry some fields in the query and the
// rest in the body.
type Params struct {
	Query url.Values
	Body  url.Values

	// BodyAttributes is a MessageAttributes object sent in a JSON body.
	BodyAttributes ordered.Map

	ClientIP  string
	UserAgent string
}

// ParseRequest extracts the protocol fields from r. Form, multipart and JSON
// bodies are understood; other bodies are ignored.
//
// On a malformed body the returned Params still carry the query fields.
func ParseRequest(r *http.Request) (Params, error) {
	query, _ := url.ParseQuery(r.URL.RawQuery)
	p := Params{
		Query:     query,
		Body:      url.Values{},
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
	}

	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return p, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "":
		data, err := readBody(r.Body)
		if err != nil {
			return p, err
		}
		body, err := url.ParseQuery(string(data))
		p.Body = body
		if err != nil {
			return p, fmt.Errorf("failed to parse form body: %w", err)
		}

	case "multipart/form-data":
		r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return p, fmt.Errorf("failed to parse multipart body: %w", err)
		}
		p.Body = url.Values(r.MultipartForm.Value)

	case "application/json":
		data, err := readBody(r.Body)
		if err != nil {
			return p, err
		}
		if len(strings.TrimSpace(string(data))) == 0 {
			return p, nil
		}
		obj, err := ordered.Parse(data)
		if err != nil {
			return p, fmt.Errorf("failed to parse JSON body: %w", err)
		}
		p.Body, p.BodyAttributes = flattenJSON(obj)
	}

	return p, nil
}

func readBody(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(data) > maxBodyBytes {
		return nil, errors.New("request body too large")
	}
	return data, nil
}

// flattenJSON keeps the scalar top-level fields of a JSON body as strings.
// A MessageAttributes object is returned separately; other nested values
// are dropped.
func flattenJSON(obj ordered.Map) (url.Values, ordered.Map) {
	values := url.Values{}
	var attrs ordered.Map
	for _, p := range obj {
		switch v := p.Value.(type) {
		case string:
			values.Set(p.Key, v)
		case json.Number:
			values.Set(p.Key, v.String())
		case bool:
			values.Set(p.Key, strconv.FormatBool(v))
		case ordered.Map:
			if p.Key == "MessageAttributes" {
				attrs = v
			}
		}
	}
	return values, attrs
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Get returns the query value of name, or the body value when the query
// value is absent or empty.
func (p Params) Get(name string) string {
	if v := p.Query.Get(name); v != "" {
		return v
	}
	return p.Body.Get(name)
}

// MessageAttributes returns the attributes sent with a publish.
//
// A MessageAttributes field holding a JSON object (as a string in the query
// or a form, or as an object in a JSON body) is passed through as is. A
// string that is not a JSON object is kept verbatim under [RawAttributesKey].
// Otherwise the SDK's indexed form MessageAttributes.entry.N.{Name,
// Value.DataType,Value.StringValue,Value.BinaryValue} is rebuilt into
// name -> {DataType, StringValue}.
func (p Params) MessageAttributes() ordered.Map {
	if raw := p.Get("MessageAttributes"); raw != "" {
		m, err := ordered.Parse([]byte(raw))
		if err != nil {
			return ordered.Map{{Key: RawAttributesKey, Value: raw}}
		}
		if m != nil {
			return m
		}
	}
	if p.BodyAttributes != nil {
		return p.BodyAttributes
	}

	var out ordered.Map
	for _, idx := range p.entryIndices(messageAttributeEntryPrefix, ".Name") {
		base := messageAttributeEntryPrefix + idx
		name := p.Get(base + ".Name")
		if name == "" {
			continue
		}
		value := ordered.Map{}
		for _, field := range []string{"DataType", "StringValue", "BinaryValue"} {
			if v := p.Get(base + ".Value." + field); v != "" {
				value = value.Set(field, v)
			}
		}
		out = out.Set(name, value)
	}
	return out
}

// SMSAttributes pairs attributes.entry.N.key with attributes.entry.N.value.
// Entries missing either half are skipped. When a key repeats, the entry
// with the highest index wins.
func (p Params) SMSAttributes() map[string]string {
	updates := make(map[string]string)
	for _, idx := range p.entryIndices(smsAttributeEntryPrefix, ".key") {
		key := p.Get(smsAttributeEntryPrefix + idx + ".key")
		value := p.Get(smsAttributeEntryPrefix + idx + ".value")
		if key == "" || value == "" {
			continue
		}
		updates[key] = value
	}
	return updates
}

// entryIndices returns the N of every prefix+N+suffix key in the query or
// body, deduplicated and in ascending order. Gaps are allowed. Numeric
// indices sort numerically and before any non-numeric ones.
func (p Params) entryIndices(prefix, suffix string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, values := range []url.Values{p.Query, p.Body} {
		for key := range values {
			if len(key) <= len(prefix)+len(suffix) ||
				!strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, suffix) {
				continue
			}
			idx := key[len(prefix) : len(key)-len(suffix)]
			if strings.Contains(idx, ".") {
				continue
			}
			if _, ok := seen[idx]; ok {
				continue
			}
			seen[idx] = struct{}{}
			out = append(out, idx)
		}
	}

	slices.SortFunc(out, compareIndex)
	return out
}

func compareIndex(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		if c := cmp.Compare(na, nb); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
