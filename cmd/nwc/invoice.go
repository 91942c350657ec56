package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	qrterminal "github.com/mdp/qrterminal/v3"

	nwc "github.com/gwillem/nwc-go"
)

type invoiceCommand struct {
	Description string `short:"d" long:"description" description:"Invoice description"`
	Expiry      int64  `short:"e" long:"expiry" description:"Expiry in seconds"`
	NoQR        bool   `long:"no-qr" description:"Do not print a QR code"`
	Args        struct {
		Sats int64 `positional-arg-name:"sats" required:"true" description:"Amount in sats"`
	} `positional-args:"true" required:"true"`
}

func (cmd *invoiceCommand) Execute(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	c, err := loadClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	tx, err := c.MakeInvoice(ctx, nwc.MakeInvoiceParams{
		Amount:      cmd.Args.Sats * 1000,
		Description: cmd.Description,
		Expiry:      cmd.Expiry,
	})
	if err != nil {
		return err
	}

	if !cmd.NoQR {
		qrterminal.GenerateWithConfig("lightning:"+strings.ToUpper(tx.Invoice), qrterminal.Config{
			Level:     qrterminal.L,
			Writer:    os.Stdout,
			BlackChar: qrterminal.BLACK,
			WhiteChar: qrterminal.WHITE,
		})
		fmt.Println()
	}
	fmt.Println(tx.Invoice)
	fmt.Printf("Payment hash: %s\n", tx.PaymentHash)
	if tx.ExpiresAt > 0 {
		fmt.Printf("Expires:      %s\n", formatUnix(tx.ExpiresAt))
	}
	return nil
}

type lookupCommand struct {
	Args struct {
		Ref string `positional-arg-name:"hash-or-invoice" required:"true" description:"Payment hash or BOLT-11 invoice"`
	} `positional-args:"true" required:"true"`
}

func (cmd *lookupCommand) Execute(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	c, err := loadClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	var p nwc.LookupInvoiceParams
	if isPaymentHash(cmd.Args.Ref) {
		p.PaymentHash = strings.ToLower(cmd.Args.Ref)
	} else {
		p.Invoice = cmd.Args.Ref
	}
	tx, err := c.LookupInvoice(ctx, p)
	if err != nil {
		var re *nwc.RemoteError
		if errors.As(err, &re) && re.Code == "NOT_FOUND" {
			return fmt.Errorf("invoice not found")
		}
		return err
	}

	fmt.Printf("Type:         %s\n", tx.Type)
	fmt.Printf("Amount:       %s\n", formatMsat(tx.Amount))
	if tx.Description != "" {
		fmt.Printf("Description:  %s\n", tx.Description)
	}
	fmt.Printf("Payment hash: %s\n", tx.PaymentHash)
	fmt.Printf("Created:      %s\n", formatUnix(tx.CreatedAt))
	if tx.SettledAt > 0 {
		fmt.Printf("Settled:      %s\n", formatUnix(tx.SettledAt))
		fmt.Printf("Preimage:     %s\n", tx.Preimage)
	} else {
		fmt.Println("Settled:      no")
	}
	return nil
}

func isPaymentHash(s string) bool {
	b, err := hex.DecodeString(s)
	return err == nil && len(b) == 32
}

type transactionsCommand struct {
	Limit  int    `short:"n" long:"limit" description:"Maximum number of transactions" default:"20"`
	Offset int    `long:"offset" description:"Number of transactions to skip"`
	Unpaid bool   `long:"unpaid" description:"Include unpaid invoices"`
	Type   string `long:"type" description:"Only incoming or outgoing" choice:"incoming" choice:"outgoing"`
}

func (cmd *transactionsCommand) Execute(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	c, err := loadClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	txs, err := c.ListTransactions(ctx, nwc.ListTransactionsParams{
		Limit:  cmd.Limit,
		Offset: cmd.Offset,
		Unpaid: cmd.Unpaid,
		Type:   cmd.Type,
	})
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		fmt.Println("No transactions")
		return nil
	}
	for _, tx := range txs {
		dir := "in "
		if tx.Type == "outgoing" {
			dir = "out"
		}
		state := "settled"
		if tx.SettledAt == 0 {
			state = "pending"
		}
		fmt.Printf("%s  %s  %-8s %14s  %s\n", formatUnix(tx.CreatedAt), dir, state, formatMsat(tx.Amount), tx.Description)
	}
	return nil
}
