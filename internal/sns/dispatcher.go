package sns

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zauberware/smshog/internal/attributes"
	"github.com/zauberware/smshog/internal/ids"
	"github.com/zauberware/smshog/internal/ordered"
	"github.com/zauberware/smshog/internal/render"
	"github.com/zauberware/smshog/internal/store"
)

// Supported action names.
const (
	ActionPublish          = "Publish"
	ActionSetSMSAttributes = "SetSMSAttributes"
)

// Outcomes reported to the [Recorder].
const (
	OutcomeSuccess     = "success"
	OutcomeClientError = "client_error"
	OutcomeServerError = "server_error"
)

// actionUnknown labels spans and metrics of unrecognized actions, keeping
// client-chosen names out of both.
const actionUnknown = "Unknown"

const tracerName = "github.com/zauberware/smshog/internal/sns"

// Recorder receives one observation per dispatched request.
type Recorder interface {
	ObserveRequest(action, outcome string)
}

// Dispatcher serves the emulated SNS protocol.
type Dispatcher struct {
	store     store.Store
	registry  *attributes.Registry
	renderer  *render.Renderer
	logger    *slog.Logger
	requestID func() string
	tracer    trace.Tracer
	recorder  Recorder
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithRequestIDs sets the source of RequestId values. The default returns
// the fixed all-zero placeholder for every request.
func WithRequestIDs(gen func() string) Option {
	return func(d *Dispatcher) {
		if gen != nil {
			d.requestID = gen
		}
	}
}

// WithTracer sets the tracer. The default uses the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) {
		if tracer != nil {
			d.tracer = tracer
		}
	}
}

// WithRecorder sets the request metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		d.recorder = r
	}
}

// NewDispatcher creates a Dispatcher backed by st and reg.
func NewDispatcher(st store.Store, reg *attributes.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:     st,
		registry:  reg,
		logger:    slog.Default(),
		requestID: ids.Placeholder,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.renderer = render.New(d.logger)
	return d
}

// ServeHTTP handles one protocol request. The Action parameter is required.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.serve(w, r, "")
}

// DefaultAction returns a handler that runs action when a request carries
// no Action parameter of its own.
func (d *Dispatcher) DefaultAction(action string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.serve(w, r, action)
	})
}

func (d *Dispatcher) serve(w http.ResponseWriter, r *http.Request, fallback string) {
	format := render.Negotiate(r.Header, r.URL.Query())

	params, err := ParseRequest(r)
	if err != nil {
		d.logger.Debug("ignoring unreadable request body", "error", err)
	}

	action := params.Get("Action")
	if action == "" {
		action = fallback
	}

	env, status := d.Dispatch(r.Context(), action, params)
	d.renderer.Write(w, format, status, env)
}

// Dispatch runs action and returns the response envelope and HTTP status.
// It always returns an envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, action string, p Params) (env ordered.Map, status int) {
	requestID := d.requestID()

	label := action
	if action != ActionPublish && action != ActionSetSMSAttributes {
		label = actionUnknown
	}

	ctx, span := d.tracer.Start(ctx, "sns."+label,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("sns.action", label),
			attribute.String("sns.request_id", requestID),
		),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			d.logger.Error("handler panic",
				"action", label,
				"request_id", requestID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			env, status = d.failure(span, label, requestID, err)
		}
	}()

	var err error
	switch action {
	case ActionPublish:
		env, err = d.publish(ctx, p, requestID)
	case ActionSetSMSAttributes:
		env, err = d.setSMSAttributes(ctx, p, requestID)
	default:
		err = invalidAction(action)
	}

	if err != nil {
		if ce, ok := asClientError(err); ok {
			d.logger.Debug("rejected request",
				"action", label,
				"request_id", requestID,
				"code", ce.Code,
				"error", ce.Message,
			)
			span.SetAttributes(attribute.String("sns.error_code", ce.Code))
			d.observe(label, OutcomeClientError)
			return errorResponse(TypeSender, ce.Code, ce.Message, requestID), http.StatusBadRequest
		}
		d.logger.Error("request failed", "action", label, "request_id", requestID, "error", err)
		return d.failure(span, label, requestID, err)
	}

	d.observe(label, OutcomeSuccess)
	return env, http.StatusOK
}

func (d *Dispatcher) failure(span trace.Span, label, requestID string, err error) (ordered.Map, int) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	d.observe(label, OutcomeServerError)
	return errorResponse(TypeReceiver, CodeInternalFailure, internalFailureMessage, requestID), http.StatusInternalServerError
}

func (d *Dispatcher) observe(action, outcome string) {
	if d.recorder != nil {
		d.recorder.ObserveRequest(action, outcome)
	}
}

func (d *Dispatcher) publish(ctx context.Context, p Params, requestID string) (ordered.Map, error) {
	phone := p.Get("PhoneNumber")
	body := p.Get("Message")
	if phone == "" || body == "" {
		return nil, ErrMissingParameter
	}

	msg := d.store.Accept(phone, body, p.MessageAttributes(), &store.Metadata{
		RequestID: requestID,
		ClientIP:  p.ClientIP,
		UserAgent: p.UserAgent,
		SenderID:  d.registry.SenderID(),
		SMSType:   d.registry.SMSType(),
	})

	trace.SpanFromContext(ctx).SetAttributes(attribute.String("sns.message_id", msg.ID))
	d.logger.Info("sms received",
		"id", msg.ID,
		"phone_number", msg.PhoneNumber,
		"request_id", requestID,
	)

	return publishResponse(msg.ID, requestID), nil
}

func (d *Dispatcher) setSMSAttributes(_ context.Context, p Params, requestID string) (ordered.Map, error) {
	updates := p.SMSAttributes()
	var ignored []string
	for name := range updates {
		if !d.registry.Known(name) {
			ignored = append(ignored, name)
		}
	}
	slices.Sort(ignored)

	applied := d.registry.Apply(updates)
	d.logger.Info("sms attributes updated",
		"applied", applied,
		"ignored", ignored,
		"request_id", requestID,
	)
	return setSMSAttributesResponse(requestID), nil
}
