// Package client talks to a running SMSHog through the AWS SDK for Go v2,
// exactly as application code would talk to SNS.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"
)

// Defaults used when Options leaves a field empty.
const (
	DefaultEndpoint        = "http://localhost:3000"
	DefaultRegion          = "us-east-1"
	DefaultAccessKeyID     = "smshog"
	DefaultSecretAccessKey = "smshog"
)

// DefaultConfigLoader allows overriding the AWS config loader for testing.
var DefaultConfigLoader = awsconfig.LoadDefaultConfig

// Options configures a [Client].
type Options struct {
	// Endpoint is the base URL of the SMSHog server.
	Endpoint string

	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// HTTPClient replaces the SDK's HTTP client when set.
	HTTPClient aws.HTTPClient

	// MaxAttempts caps SDK retries. Zero keeps the SDK default.
	MaxAttempts int
}

// Client wraps an SNS client pointed at SMSHog.
type Client struct {
	sns *sns.Client
}

// New loads an AWS configuration with static credentials and returns a
// Client whose requests go to opts.Endpoint.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Region == "" {
		opts.Region = DefaultRegion
	}
	if opts.AccessKeyID == "" || opts.SecretAccessKey == "" {
		opts.AccessKeyID = DefaultAccessKeyID
		opts.SecretAccessKey = DefaultSecretAccessKey
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(staticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey)),
	}
	if opts.HTTPClient != nil {
		loadOpts = append(loadOpts, awsconfig.WithHTTPClient(opts.HTTPClient))
	}
	if opts.MaxAttempts > 0 {
		loadOpts = append(loadOpts, awsconfig.WithRetryMaxAttempts(opts.MaxAttempts))
	}

	cfg, err := DefaultConfigLoader(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := opts.Endpoint
	return &Client{
		sns: sns.NewFromConfig(cfg, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		}),
	}, nil
}

func staticCredentialsProvider(accessKeyID, secretAccessKey string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
		}, nil
	})
}

// Publish sends an SMS and returns the MessageId assigned by the server.
// Attributes are sent as String message attributes.
func (c *Client) Publish(ctx context.Context, phoneNumber, message string, attrs map[string]string) (string, error) {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(phoneNumber),
		Message:     aws.String(message),
	}
	if len(attrs) > 0 {
		input.MessageAttributes = make(map[string]types.MessageAttributeValue, len(attrs))
		for name, value := range attrs {
			input.MessageAttributes[name] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(value),
			}
		}
	}

	out, err := c.sns.Publish(ctx, input)
	if err != nil {
		return "", fmt.Errorf("publish failed: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// SetSMSAttributes updates the server's SMS attribute registry.
func (c *Client) SetSMSAttributes(ctx context.Context, attrs map[string]string) error {
	if _, err := c.sns.SetSMSAttributes(ctx, &sns.SetSMSAttributesInput{Attributes: attrs}); err != nil {
		return fmt.Errorf("set sms attributes failed: %w", err)
	}
	return nil
}

// ErrorCode returns the SNS error code carried by err, or "" if err did not
// come from the service.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
