// Package smshog is a local emulator of the AWS SNS SMS API.
//
// Applications under development point their SNS client at SMSHog instead of
// AWS. Publish requests are accepted, stored and answered with the same
// envelopes SNS would return; nothing is ever sent to a phone. The stored
// messages can then be inspected through a small JSON API and a live event
// stream.
//
// # Quick Start
//
//	hog, _ := smshog.New(smshog.WithPort(3000))
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	hog.Start(ctx) // blocks until context is cancelled
//
// Point an AWS SDK at it:
//
//	cfg, _ := config.LoadDefaultConfig(ctx, config.WithRegion("us-east-1"))
//	client := sns.NewFromConfig(cfg, func(o *sns.Options) {
//	    o.BaseEndpoint = aws.String("http://localhost:3000")
//	})
//
// # Configuration
//
// SMSHog uses the functional options pattern:
//
//	hog, err := smshog.New(
//	    smshog.WithPort(3000),
//	    smshog.WithPersistence("smshog-data.json", time.Minute),
//	    smshog.WithCORSOrigins("http://localhost:5173"),
//	    smshog.WithUniqueRequestIDs(),
//	)
//
// # HTTP Surface
//
//   - POST / and GET /: the SNS Query API, selected by the Action parameter
//   - POST /sms: the same, with Action defaulting to Publish
//   - /api/v1/sms: list, fetch, delete and clear stored messages
//   - /api/v1/attributes: the current SMS attribute values
//   - /api/v1/events: Server-Sent Events for store changes
//   - /health and /metrics
//
// Protocol responses are XML unless the client asks for JSON.
//
// # Architecture
//
// SMSHog consists of several internal packages (under internal/):
//
//   - internal/sns: Action dispatch and request parameter parsing
//   - internal/render: XML and JSON envelope rendering
//   - internal/store: Message store with an optional snapshot file
//   - internal/attributes: SMS attribute registry
//   - internal/feed: Store change fan-out for the event stream
//   - internal/server: HTTP routing, REST API and Server-Sent Events
//   - internal/metrics: Prometheus collectors
//
// The internal packages are not part of the public API and may change
// without notice.
package smshog
