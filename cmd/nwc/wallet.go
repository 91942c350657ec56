package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
)

type infoCommand struct{}

func (cmd *infoCommand) Execute(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	c, err := loadClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	info, err := c.GetInfo(ctx)
	if err != nil {
		return err
	}
	if info.Alias != "" {
		fmt.Printf("Alias:         %s\n", info.Alias)
	}
	if info.Pubkey != "" {
		fmt.Printf("Node:          %s\n", info.Pubkey)
	}
	if info.Network != "" {
		fmt.Printf("Network:       %s\n", info.Network)
	}
	if info.BlockHeight > 0 {
		fmt.Printf("Block:         %d %s\n", info.BlockHeight, info.BlockHash)
	}
	fmt.Printf("Methods:       %s\n", strings.Join(info.Methods, ", "))
	if len(info.Notifications) > 0 {
		fmt.Printf("Notifications: %s\n", strings.Join(info.Notifications, ", "))
	}
	return nil
}

type balanceCommand struct{}

func (cmd *balanceCommand) Execute(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	c, err := loadClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	b, err := c.GetBalance(ctx)
	if err != nil {
		return err
	}
	fmt.Println(formatMsat(b.Balance))
	return nil
}
