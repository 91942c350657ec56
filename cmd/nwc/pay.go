package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	nwc "github.com/gwillem/nwc-go"
)

type payCommand struct {
	Amount int64 `short:"m" long:"msat" description:"Amount in msat, for invoices without an amount"`
	Args   struct {
		Invoice string `positional-arg-name:"invoice" required:"true" description:"BOLT-11 invoice"`
	} `positional-args:"true" required:"true"`
}

func (cmd *payCommand) Execute(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	c, err := loadClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	invoice := strings.TrimPrefix(strings.TrimSpace(cmd.Args.Invoice), "lightning:")
	res, err := c.PayInvoice(ctx, invoice, cmd.Amount)
	if err != nil {
		return err
	}
	printPayResult(res)
	return nil
}

type keysendCommand struct {
	Preimage string   `long:"preimage" description:"Hex preimage (generated by the wallet if omitted)"`
	TLV      []string `long:"tlv" description:"Custom TLV record as type=hexvalue (repeatable)"`
	Args     struct {
		Pubkey string `positional-arg-name:"pubkey" required:"true" description:"Destination node public key"`
		Amount int64  `positional-arg-name:"msat" required:"true" description:"Amount in msat"`
	} `positional-args:"true" required:"true"`
}

func (cmd *keysendCommand) Execute(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	p := nwc.KeysendParams{
		Amount:   cmd.Args.Amount,
		Pubkey:   cmd.Args.Pubkey,
		Preimage: cmd.Preimage,
	}
	for _, raw := range cmd.TLV {
		typ, value, ok := strings.Cut(raw, "=")
		if !ok {
			return fmt.Errorf("invalid tlv record %q (want type=hexvalue)", raw)
		}
		n, err := strconv.ParseUint(typ, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid tlv type %q: %w", typ, err)
		}
		p.TLVRecords = append(p.TLVRecords, nwc.TLVRecord{Type: n, Value: value})
	}

	c, err := loadClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.PayKeysend(ctx, p)
	if err != nil {
		return err
	}
	printPayResult(res)
	return nil
}

func printPayResult(res *nwc.PayResult) {
	fmt.Printf("Paid. Preimage: %s\n", res.Preimage)
	if res.FeesPaid > 0 {
		fmt.Printf("Fees: %s\n", formatMsat(res.FeesPaid))
	}
}
