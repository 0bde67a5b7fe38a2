package sns

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/zauberware/smshog/internal/attributes"
	"github.com/zauberware/smshog/internal/ids"
	"github.com/zauberware/smshog/internal/ordered"
	"github.com/zauberware/smshog/internal/render"
	"github.com/zauberware/smshog/internal/store"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type publishXML struct {
	XMLName   xml.Name `xml:"PublishResponse"`
	MessageID string   `xml:"PublishResult>MessageId"`
	RequestID string   `xml:"ResponseMetadata>RequestId"`
}

type errorXML struct {
	XMLName   xml.Name `xml:"ErrorResponse"`
	Type      string   `xml:"Error>Type"`
	Code      string   `xml:"Error>Code"`
	Message   string   `xml:"Error>Message"`
	RequestID string   `xml:"RequestId"`
}

type recorderFunc func(action, outcome string)

func (f recorderFunc) ObserveRequest(action, outcome string) { f(action, outcome) }

func newTestDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *store.MemoryStore, *attributes.Registry) {
	t.Helper()
	st := store.NewMemoryStore(store.WithLogger(testLogger()))
	reg := attributes.NewRegistry()
	opts = append([]Option{WithLogger(testLogger())}, opts...)
	return NewDispatcher(st, reg, opts...), st, reg
}

func postForm(h http.Handler, target string, form url.Values, accept string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if accept != "" {
		r.Header.Set("Accept", accept)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestDispatcher_PublishOnSMSRoute(t *testing.T) {
	d, st, _ := newTestDispatcher(t)

	rec := postForm(d.DefaultAction(ActionPublish), "/sms", url.Values{
		"PhoneNumber": {"+15551234567"},
		"Message":     {"Hello"},
	}, "text/xml")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("Content-Type = %q, want text/xml", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `<PublishResponse xmlns="`+render.Namespace+`">`) {
		t.Errorf("body missing namespaced root: %s", body)
	}

	var resp publishXML
	if err := xml.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not well-formed: %v", err)
	}
	if resp.MessageID == "" {
		t.Fatal("MessageId is empty")
	}
	if resp.RequestID != ids.PlaceholderRequestID {
		t.Errorf("RequestId = %q, want placeholder", resp.RequestID)
	}

	msg, ok := st.Get(resp.MessageID)
	if !ok {
		t.Fatalf("message %q not stored", resp.MessageID)
	}
	if msg.PhoneNumber != "+15551234567" || msg.Message != "Hello" {
		t.Errorf("stored message = %+v", msg)
	}
	if msg.Metadata == nil || msg.Metadata.SenderID != "SMSHOG" || msg.Metadata.SMSType != "Transactional" {
		t.Errorf("stored metadata = %+v", msg.Metadata)
	}
	if msg.Metadata.ClientIP == "" {
		t.Error("client IP not recorded")
	}
}

func TestDispatcher_ExplicitActionBeatsDefault(t *testing.T) {
	d, st, _ := newTestDispatcher(t)

	rec := postForm(d.DefaultAction(ActionPublish), "/sms", url.Values{
		"Action":                   {"SetSMSAttributes"},
		"attributes.entry.1.key":   {"DefaultSenderID"},
		"attributes.entry.1.value": {"FOO"},
	}, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<SetSMSAttributesResponse") {
		t.Errorf("body = %s, want SetSMSAttributesResponse", rec.Body.String())
	}
	if st.Len() != 0 {
		t.Error("SetSMSAttributes must not store a message")
	}
}

func TestDispatcher_PublishQueryJSON(t *testing.T) {
	d, st, _ := newTestDispatcher(t)

	r := httptest.NewRequest(http.MethodGet, "/?Action=Publish&PhoneNumber=%2B15550001&Message=From+query", nil)
	r.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp struct {
		PublishResponse struct {
			PublishResult struct {
				MessageId string
			}
			ResponseMetadata struct {
				RequestId string
			}
		}
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	id := resp.PublishResponse.PublishResult.MessageId
	msg, ok := st.Get(id)
	if !ok {
		t.Fatalf("message %q not stored", id)
	}
	if msg.Message != "From query" {
		t.Errorf("Message = %q", msg.Message)
	}
}

func TestDispatcher_PublishMissingParameters(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
	}{
		{"no phone number", url.Values{"Action": {"Publish"}, "Message": {"hi"}}},
		{"no message", url.Values{"Action": {"Publish"}, "PhoneNumber": {"+1"}}},
		{"empty phone number", url.Values{"Action": {"Publish"}, "PhoneNumber": {""}, "Message": {"hi"}}},
		{"nothing", url.Values{"Action": {"Publish"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, st, _ := newTestDispatcher(t)

			rec := postForm(d, "/", tt.form, "")

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var resp errorXML
			if err := xml.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid XML: %v", err)
			}
			if resp.Type != TypeSender || resp.Code != CodeInvalidParameter {
				t.Errorf("error = %s/%s, want Sender/InvalidParameter", resp.Type, resp.Code)
			}
			if resp.Message != "Missing required parameter PhoneNumber or Message" {
				t.Errorf("Message = %q", resp.Message)
			}
			if st.Len() != 0 {
				t.Errorf("store has %d messages, want 0", st.Len())
			}
		})
	}
}

func TestDispatcher_UnknownAction(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	rec := postForm(d, "/", url.Values{"Action": {"DeleteTopic"}}, "application/json")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp struct {
		ErrorResponse struct {
			Error struct {
				Type, Code, Message string
			}
			RequestId string
		}
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	e := resp.ErrorResponse.Error
	if e.Type != "Sender" || e.Code != "InvalidAction" {
		t.Errorf("error = %s/%s, want Sender/InvalidAction", e.Type, e.Code)
	}
	if e.Message != "The action DeleteTopic is not valid" {
		t.Errorf("Message = %q", e.Message)
	}
	if resp.ErrorResponse.RequestId != ids.PlaceholderRequestID {
		t.Errorf("RequestId = %q", resp.ErrorResponse.RequestId)
	}
}

func TestDispatcher_MissingActionOnRoot(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	rec := postForm(d, "/", url.Values{"PhoneNumber": {"+1"}, "Message": {"hi"}}, "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<Code>InvalidAction</Code>") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestDispatcher_QueryFirstPerField(t *testing.T) {
	d, st, _ := newTestDispatcher(t)

	rec := postForm(d, "/?Action=Publish&PhoneNumber=%2B1000", url.Values{
		"PhoneNumber": {"+2000"},
		"Message":     {"body message"},
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	list := st.List()
	if len(list) != 1 {
		t.Fatalf("store has %d messages, want 1", len(list))
	}
	if list[0].PhoneNumber != "+1000" || list[0].Message != "body message" {
		t.Errorf("stored = %+v, want query phone and body message", list[0])
	}
}

func TestDispatcher_SetSMSAttributesAffectsPublish(t *testing.T) {
	d, st, reg := newTestDispatcher(t)

	rec := postForm(d, "/", url.Values{
		"Action":                   {"SetSMSAttributes"},
		"attributes.entry.1.key":   {"DefaultSenderID"},
		"attributes.entry.1.value": {"FOO"},
		"attributes.entry.2.key":   {"NotARealAttribute"},
		"attributes.entry.2.value": {"ignored"},
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("SetSMSAttributes status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `<SetSMSAttributesResponse xmlns="`+render.Namespace+`">`) {
		t.Errorf("body = %s", rec.Body.String())
	}
	if reg.Known("NotARealAttribute") {
		t.Error("unknown attribute was stored in the registry")
	}

	postForm(d, "/", url.Values{
		"Action":      {"Publish"},
		"PhoneNumber": {"+1"},
		"Message":     {"hi"},
	}, "")

	list := st.List()
	if len(list) != 1 {
		t.Fatalf("store has %d messages, want 1", len(list))
	}
	if got := list[0].Metadata.SenderID; got != "FOO" {
		t.Errorf("SenderID = %q, want FOO", got)
	}
}

func TestDispatcher_SetSMSAttributesLogsIgnoredNames(t *testing.T) {
	var buf bytes.Buffer
	d, _, _ := newTestDispatcher(t, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	postForm(d, "/", url.Values{
		"Action":                   {"SetSMSAttributes"},
		"attributes.entry.1.key":   {"DefaultSMSType"},
		"attributes.entry.1.value": {"Promotional"},
		"attributes.entry.2.key":   {"Bogus"},
		"attributes.entry.2.value": {"x"},
	}, "")

	out := buf.String()
	if !strings.Contains(out, "applied=[DefaultSMSType]") {
		t.Errorf("log missing applied names: %s", out)
	}
	if !strings.Contains(out, "ignored=[Bogus]") {
		t.Errorf("log missing ignored names: %s", out)
	}
}

func TestDispatcher_PublishIndexedMessageAttributes(t *testing.T) {
	d, st, _ := newTestDispatcher(t)

	postForm(d, "/", url.Values{
		"Action":                                      {"Publish"},
		"PhoneNumber":                                 {"+1"},
		"Message":                                     {"hi"},
		"MessageAttributes.entry.1.Name":              {"AWS.SNS.SMS.SMSType"},
		"MessageAttributes.entry.1.Value.DataType":    {"String"},
		"MessageAttributes.entry.1.Value.StringValue": {"Promotional"},
	}, "")

	list := st.List()
	if len(list) != 1 {
		t.Fatalf("store has %d messages, want 1", len(list))
	}
	v, ok := list[0].MessageAttributes.Get("AWS.SNS.SMS.SMSType")
	if !ok {
		t.Fatalf("MessageAttributes = %v", list[0].MessageAttributes)
	}
	if sv, _ := v.(ordered.Map).Get("StringValue"); sv != "Promotional" {
		t.Errorf("StringValue = %v", sv)
	}
}

func TestDispatcher_PublishJSONBody(t *testing.T) {
	d, st, _ := newTestDispatcher(t)

	body := `{"Action":"Publish","PhoneNumber":"+1","Message":"json","MessageAttributes":{"k":{"DataType":"String","StringValue":"v"}}}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
	}
	list := st.List()
	if len(list) != 1 || list[0].Message != "json" {
		t.Fatalf("stored = %+v", list)
	}
	if _, ok := list[0].MessageAttributes.Get("k"); !ok {
		t.Errorf("MessageAttributes = %v", list[0].MessageAttributes)
	}
}

func TestDispatcher_FormatQueryForcesXML(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	rec := postForm(d, "/?format=xml", url.Values{
		"Action":      {"Publish"},
		"PhoneNumber": {"+1"},
		"Message":     {"hi"},
	}, "application/json")

	if ct := rec.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("Content-Type = %q, want text/xml", ct)
	}
}

func TestDispatcher_UniqueRequestIDs(t *testing.T) {
	d, st, _ := newTestDispatcher(t, WithRequestIDs(ids.NewRequestID))

	rec := postForm(d, "/", url.Values{
		"Action":      {"Publish"},
		"PhoneNumber": {"+1"},
		"Message":     {"hi"},
	}, "")

	var resp publishXML
	if err := xml.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid XML: %v", err)
	}
	if resp.RequestID == ids.PlaceholderRequestID || len(resp.RequestID) != 26 {
		t.Errorf("RequestId = %q, want a ULID", resp.RequestID)
	}
	msg, _ := st.Get(resp.MessageID)
	if msg.Metadata.RequestID != resp.RequestID {
		t.Errorf("stored RequestID = %q, want %q", msg.Metadata.RequestID, resp.RequestID)
	}
}

// panicStore panics on every write.
type panicStore struct{ store.Store }

func (panicStore) Accept(string, string, ordered.Map, *store.Metadata) store.Message {
	panic("disk on fire")
}

func TestDispatcher_PanicBecomesInternalFailure(t *testing.T) {
	d := NewDispatcher(panicStore{}, attributes.NewRegistry(), WithLogger(testLogger()))

	rec := postForm(d, "/", url.Values{
		"Action":      {"Publish"},
		"PhoneNumber": {"+1"},
		"Message":     {"hi"},
	}, "")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var resp errorXML
	if err := xml.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid XML: %v", err)
	}
	if resp.Type != TypeReceiver || resp.Code != CodeInternalFailure {
		t.Errorf("error = %s/%s, want Receiver/InternalFailure", resp.Type, resp.Code)
	}
	if resp.Message != "The request processing failed because of an unknown error" {
		t.Errorf("Message = %q", resp.Message)
	}
	if strings.Contains(rec.Body.String(), "disk on fire") {
		t.Error("panic detail leaked into the response")
	}
}

func TestDispatcher_RecordsOutcomes(t *testing.T) {
	var mu sync.Mutex
	got := map[string]int{}
	rec := recorderFunc(func(action, outcome string) {
		mu.Lock()
		got[action+"/"+outcome]++
		mu.Unlock()
	})
	d, _, _ := newTestDispatcher(t, WithRecorder(rec))
	ctx := context.Background()

	d.Dispatch(ctx, ActionPublish, Params{Query: url.Values{"PhoneNumber": {"+1"}, "Message": {"m"}}})
	d.Dispatch(ctx, ActionPublish, Params{})
	d.Dispatch(ctx, ActionSetSMSAttributes, Params{})
	d.Dispatch(ctx, "ListTopics", Params{})

	want := map[string]int{
		"Publish/success":          1,
		"Publish/client_error":     1,
		"SetSMSAttributes/success": 1,
		"Unknown/client_error":     1,
	}
	mu.Lock()
	defer mu.Unlock()
	for k, v := range want {
		if got[k] != v {
			t.Errorf("recorded %s = %d, want %d (all: %v)", k, got[k], v, got)
		}
	}
}

func TestDispatcher_DispatchReturnsEnvelope(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	env, status := d.Dispatch(context.Background(), ActionSetSMSAttributes, Params{})
	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if keys := env.Keys(); len(keys) != 1 || keys[0] != "SetSMSAttributesResponse" {
		t.Errorf("envelope keys = %v", keys)
	}
}
