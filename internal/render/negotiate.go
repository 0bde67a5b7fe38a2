package render

import (
	"net/http"
	"net/url"
	"strings"
)

// Format is a response encoding.
type Format int

const (
	XML Format = iota
	JSON
)

func (f Format) String() string {
	if f == JSON {
		return "json"
	}
	return "xml"
}

// ContentType returns the Content-Type header value for f.
func (f Format) ContentType() string {
	if f == JSON {
		return "application/json"
	}
	return "text/xml"
}

// Negotiate picks the response format for a request.
//
// XML wins when the query has format=xml, or when the Accept or Content-Type
// header mentions xml. Otherwise the response is XML unless Accept mentions
// json. A format=json query value is not consulted: SDKs never send one, and
// clients that want JSON ask for it through Accept.
func Negotiate(header http.Header, query url.Values) Format {
	accept := header.Get("Accept")
	switch {
	case query.Get("format") == "xml":
		return XML
	case strings.Contains(accept, "xml"):
		return XML
	case strings.Contains(header.Get("Content-Type"), "xml"):
		return XML
	case strings.Contains(accept, "json"):
		return JSON
	default:
		return XML
	}
}
