package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"golang.org/x/term"

	nwc "github.com/gwillem/nwc-go"
)

type connectCommand struct {
	Args struct {
		URI string `positional-arg-name:"uri" description:"nostr+walletconnect:// URI (read from stdin if omitted)"`
	} `positional-args:"true"`
}

func (cmd *connectCommand) Execute(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	uri := cmd.Args.URI
	if uri == "" {
		var err error
		if uri, err = readURI(); err != nil {
			return err
		}
	}
	if _, err := nwc.ParseConnectionURI(uri); err != nil {
		return err
	}

	c := nwc.NewClient(clientOpts()...)
	defer c.Close()

	if err := c.Connect(ctx, uri); err != nil {
		return err
	}
	st := c.State()
	fmt.Printf("Connected to wallet %s via %s\n", st.WalletPubKey, st.RelayURL)

	info, err := c.GetInfo(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: get_info: %v\n", err)
		return nil
	}
	if info.Alias != "" {
		fmt.Printf("Alias:   %s\n", info.Alias)
	}
	fmt.Printf("Methods: %s\n", strings.Join(info.Methods, ", "))
	return nil
}

// readURI reads the connection URI from stdin. The URI carries the client
// secret, so it is not echoed on a terminal.
func readURI() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Print("Connection URI: ")
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read uri: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no input")
}

type disconnectCommand struct{}

func (cmd *disconnectCommand) Execute(args []string) error {
	c := nwc.NewClient(clientOpts()...)
	defer c.Close()

	if err := c.Disconnect(); err != nil {
		return err
	}
	fmt.Println("Saved wallet connection removed")
	return nil
}

type statusCommand struct{}

func (cmd *statusCommand) Execute(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	c, err := loadClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	// The info probe runs in the background after connecting.
	if _, err := c.GetInfo(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: get_info: %v\n", err)
	}

	st := c.State()
	fmt.Printf("State:         %s\n", st.State)
	fmt.Printf("Wallet:        %s\n", st.WalletPubKey)
	fmt.Printf("Client:        %s\n", st.ClientPubKey)
	fmt.Printf("Relay:         %s\n", st.RelayURL)
	fmt.Printf("Methods:       %s\n", strings.Join(st.Capabilities, ", "))
	if len(st.NotificationTypes) > 0 {
		fmt.Printf("Notifications: %s\n", strings.Join(st.NotificationTypes, ", "))
	}
	if len(st.Encryption) > 0 {
		fmt.Printf("Encryption:    %s\n", strings.Join(st.Encryption, ", "))
	}
	if st.LastError != nil {
		fmt.Printf("Last error:    %v\n", st.LastError)
	}
	return nil
}
