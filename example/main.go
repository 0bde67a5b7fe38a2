// Command example embeds SMSHog in a program and publishes to it through the
// AWS SDK, the way an application under test would.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zauberware/smshog"
	"github.com/zauberware/smshog/internal/client"
)

const port = 3000

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hog, err := smshog.New(
		smshog.WithPort(port),
		smshog.WithMessageCallback(func(m smshog.Message) {
			fmt.Printf("  -> %s: %q (id %s)\n", m.PhoneNumber, m.Message, m.ID)
		}),
	)
	if err != nil {
		slog.Error("failed to create smshog", "error", err)
		os.Exit(1)
	}

	done := make(chan error, 1)
	go func() {
		done <- hog.Start(ctx)
	}()
	time.Sleep(100 * time.Millisecond)

	sns, err := client.New(ctx, client.Options{Endpoint: fmt.Sprintf("http://localhost:%d", port)})
	if err != nil {
		slog.Error("failed to create SNS client", "error", err)
		os.Exit(1)
	}

	if err := sns.SetSMSAttributes(ctx, map[string]string{"DefaultSenderID": "DEMO"}); err != nil {
		slog.Error("SetSMSAttributes failed", "error", err, "code", client.ErrorCode(err))
		os.Exit(1)
	}

	for i, text := range []string{"Your code is 1234", "Your order has shipped"} {
		if _, err := sns.Publish(ctx, fmt.Sprintf("+1555000%04d", i), text, nil); err != nil {
			slog.Error("Publish failed", "error", err, "code", client.ErrorCode(err))
			os.Exit(1)
		}
	}

	fmt.Println()
	fmt.Printf("  Messages: http://localhost:%d/api/v1/sms\n", port)
	fmt.Printf("  Events:   http://localhost:%d/api/v1/events\n", port)
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	if err := <-done; err != nil {
		slog.Error("smshog error", "error", err)
		os.Exit(1)
	}
}
