// Command nwc is a CLI for controlling a Lightning wallet over Nostr Wallet Connect.
//
// Usage:
//
//	nwc connect <uri>       Connect to a wallet and remember the connection
//	nwc balance             Show the wallet balance
//	nwc pay <invoice>       Pay a BOLT-11 invoice
//	nwc invoice <sats>      Create an invoice
//	nwc listen              Print payment notifications
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	flags "github.com/jessevdk/go-flags"

	nwc "github.com/gwillem/nwc-go"
)

type globalOpts struct {
	DB           string              `long:"db" description:"Path to database file"`
	Verbose      bool                `short:"v" long:"verbose" description:"Enable verbose logging"`
	Timeout      time.Duration       `short:"t" long:"timeout" description:"How long to wait for a wallet response" default:"30s"`
	Connect      connectCommand      `command:"connect" description:"Connect to a wallet using a nostr+walletconnect:// URI"`
	Disconnect   disconnectCommand   `command:"disconnect" description:"Disconnect and forget the saved wallet connection"`
	Status       statusCommand       `command:"status" description:"Show the saved connection and what the wallet supports"`
	Info         infoCommand         `command:"info" description:"Show wallet information (get_info)"`
	Balance      balanceCommand      `command:"balance" description:"Show the wallet balance"`
	Pay          payCommand          `command:"pay" description:"Pay a BOLT-11 invoice"`
	Keysend      keysendCommand      `command:"keysend" description:"Send a spontaneous payment to a node"`
	Invoice      invoiceCommand      `command:"invoice" description:"Create an invoice"`
	Lookup       lookupCommand       `command:"lookup" description:"Look up an invoice by payment hash or invoice"`
	Transactions transactionsCommand `command:"transactions" description:"List invoices and payments"`
	Listen       listenCommand       `command:"listen" description:"Print payment notifications until interrupted"`
	Keygen       keygenCommand       `command:"keygen" description:"Generate a new key pair"`
	Key          keyCommand          `command:"key" description:"Convert a key between hex and npub/nsec"`
}

var opts globalOpts

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.SubcommandsOptional = false

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

func clientOpts() []nwc.Option {
	var copts []nwc.Option
	if opts.DB != "" {
		copts = append(copts, nwc.WithDBPath(opts.DB))
	}
	if opts.Verbose {
		copts = append(copts, nwc.WithLogger(log.New(os.Stderr, "", log.LstdFlags)))
	}
	if opts.Timeout > 0 {
		copts = append(copts, nwc.WithRequestTimeout(opts.Timeout))
	}
	return copts
}

// loadClient restores the saved wallet connection. The caller must Close
// the returned client.
func loadClient(ctx context.Context, extra ...nwc.Option) (*nwc.Client, error) {
	c := nwc.NewClient(append(clientOpts(), extra...)...)
	ok, err := c.Restore(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	if !ok {
		c.Close()
		return nil, fmt.Errorf("no saved wallet connection (run: nwc connect <uri>)")
	}
	return c, nil
}

func formatMsat(msat int64) string {
	if msat%1000 == 0 {
		return fmt.Sprintf("%d sat", msat/1000)
	}
	return fmt.Sprintf("%d msat", msat)
}

func formatUnix(sec int64) string {
	if sec == 0 {
		return "-"
	}
	return time.Unix(sec, 0).Format("2006-01-02 15:04:05")
}
