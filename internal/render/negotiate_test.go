package render

import (
	"net/http"
	"net/url"
	"testing"
)

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name        string
		accept      string
		contentType string
		query       string
		want        Format
	}{
		{name: "no hints defaults to xml", want: XML},
		{name: "accept json", accept: "application/json", want: JSON},
		{name: "accept text/xml", accept: "text/xml", want: XML},
		{name: "accept both prefers xml", accept: "application/json, application/xml", want: XML},
		{name: "format=xml overrides accept json", accept: "application/json", query: "format=xml", want: XML},
		{name: "format=json is ignored", query: "format=json", want: XML},
		{name: "format=json with accept json", accept: "application/json", query: "format=json", want: JSON},
		{name: "xml content type overrides accept json", accept: "application/json", contentType: "text/xml", want: XML},
		{name: "form content type with accept json", accept: "application/json", contentType: "application/x-www-form-urlencoded", want: JSON},
		{name: "wildcard accept", accept: "*/*", want: XML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.accept != "" {
				h.Set("Accept", tt.accept)
			}
			if tt.contentType != "" {
				h.Set("Content-Type", tt.contentType)
			}
			q, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("ParseQuery() error = %v", err)
			}

			if got := Negotiate(h, q); got != tt.want {
				t.Errorf("Negotiate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormat_ContentType(t *testing.T) {
	if got := XML.ContentType(); got != "text/xml" {
		t.Errorf("XML.ContentType() = %q", got)
	}
	if got := JSON.ContentType(); got != "application/json" {
		t.Errorf("JSON.ContentType() = %q", got)
	}
}
