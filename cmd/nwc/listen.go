package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	nwc "github.com/gwillem/nwc-go"
)

type listenCommand struct {
	History int `long:"history" description:"Print this many logged notifications first" default:"0"`
	Keep    int `long:"keep" description:"Number of notifications to keep in the log (0 = all)" default:"1000"`
	N       int `short:"n" description:"Stop after this many notifications (0 = unlimited)" default:"0"`
}

func (cmd *listenCommand) Execute(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	c, err := loadClient(ctx, nwc.WithNotificationBuffer(64), nwc.WithNotificationLimit(cmd.Keep))
	if err != nil {
		return err
	}
	defer c.Close()

	if cmd.History > 0 {
		past, err := c.RecentNotifications(cmd.History)
		if err != nil {
			return err
		}
		// Oldest first, like the live stream.
		for i := len(past) - 1; i >= 0; i-- {
			printNotification(past[i])
		}
	}

	fmt.Println("Listening for notifications... (Ctrl+C to stop)")

	done := c.Done()
	count := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			if err := c.State().LastError; err != nil {
				return fmt.Errorf("connection lost: %w", err)
			}
			return fmt.Errorf("connection closed by relay")
		case n := <-c.Notifications():
			printNotification(n)
			count++
			if cmd.N > 0 && count >= cmd.N {
				return nil
			}
		}
	}
}

func printNotification(n nwc.Notification) {
	at := n.CreatedAt
	if at.IsZero() {
		// Logged notifications only carry the arrival time.
		at = n.ReceivedAt
	}
	ts := at.Format("2006-01-02 15:04:05")
	switch n.Type {
	case nwc.NotificationPaymentReceived:
		fmt.Printf("[%s] received %s %s\n", ts, formatMsat(n.Transaction.Amount), n.Transaction.Description)
	case nwc.NotificationPaymentSent:
		fmt.Printf("[%s] sent %s (fees %s)\n", ts, formatMsat(n.Transaction.Amount), formatMsat(n.Transaction.FeesPaid))
	default:
		fmt.Printf("[%s] %s %s\n", ts, n.Type, n.Transaction.PaymentHash)
	}
}
