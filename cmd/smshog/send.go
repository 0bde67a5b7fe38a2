package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zauberware/smshog/internal/attributes"
	"github.com/zauberware/smshog/internal/client"
)

const sendTimeout = 10 * time.Second

// sendCmd publishes one SMS through the AWS SDK.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Publish an SMS through the AWS SDK",
	Long: `Publish one SMS to a running SMSHog (or any SNS endpoint) using the
AWS SDK for Go, and print the returned MessageId.

Example:
  smshog send -p +15551234567 -m "Your code is 1234"
  smshog send -p +15551234567 -m "Hi" --sender-id ACME --attr AWS.SNS.SMS.SMSType=Promotional`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().String("endpoint", client.DefaultEndpoint, "SNS endpoint URL")
	sendCmd.Flags().String("region", client.DefaultRegion, "AWS region")
	sendCmd.Flags().StringP("phone", "p", "", "destination phone number (required)")
	sendCmd.Flags().StringP("message", "m", "", "message body (required)")
	sendCmd.Flags().String("sender-id", "", "set DefaultSenderID before publishing")
	sendCmd.Flags().StringToString("attr", nil, "message attribute as name=value (repeatable)")
	_ = sendCmd.MarkFlagRequired("phone")
	_ = sendCmd.MarkFlagRequired("message")
}

func runSend(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	endpoint, _ := flags.GetString("endpoint")
	region, _ := flags.GetString("region")
	phone, _ := flags.GetString("phone")
	message, _ := flags.GetString("message")
	senderID, _ := flags.GetString("sender-id")
	attrs, _ := flags.GetStringToString("attr")

	ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
	defer cancel()

	c, err := client.New(ctx, client.Options{Endpoint: endpoint, Region: region})
	if err != nil {
		return fmt.Errorf("failed to create SNS client: %w", err)
	}

	if senderID != "" {
		if err := c.SetSMSAttributes(ctx, map[string]string{attributes.DefaultSenderID: senderID}); err != nil {
			return describeSendError("SetSMSAttributes", err)
		}
	}

	id, err := c.Publish(ctx, phone, message, attrs)
	if err != nil {
		return describeSendError("Publish", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "MessageId: %s\n", id)
	return nil
}

// describeSendError prefixes SNS error codes so they are easy to spot.
func describeSendError(action string, err error) error {
	if code := client.ErrorCode(err); code != "" {
		return fmt.Errorf("%s failed (%s): %w", action, code, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s: %w", action, sendTimeout, err)
	}
	return fmt.Errorf("%s failed: %w", action, err)
}
