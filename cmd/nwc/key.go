package main

import (
	"fmt"

	nwc "github.com/gwillem/nwc-go"
)

type keygenCommand struct{}

func (cmd *keygenCommand) Execute(args []string) error {
	kp, err := nwc.GenerateKeyPair()
	if err != nil {
		return err
	}
	return printKeyPair(kp)
}

type keyCommand struct {
	Args struct {
		Key string `positional-arg-name:"key" required:"true" description:"Hex public key, npub or nsec"`
	} `positional-args:"true" required:"true"`
}

func (cmd *keyCommand) Execute(args []string) error {
	key := cmd.Args.Key
	if nwc.LooksLikeIdentifier(key) {
		prefix, hexKey, err := nwc.DecodeIdentifier(key)
		if err != nil {
			return err
		}
		if prefix == nwc.SecretKeyPrefix {
			kp, err := nwc.KeyPairFromSecret(hexKey)
			if err != nil {
				return err
			}
			return printKeyPair(kp)
		}
		fmt.Printf("public: %s\n", hexKey)
		return nil
	}

	npub, err := nwc.EncodeIdentifier(nwc.PublicKeyPrefix, key)
	if err != nil {
		return err
	}
	fmt.Printf("npub: %s\n", npub)
	return nil
}

func printKeyPair(kp *nwc.KeyPair) error {
	npub, err := kp.Npub()
	if err != nil {
		return err
	}
	nsec, err := kp.Nsec()
	if err != nil {
		return err
	}
	fmt.Printf("secret: %s\n", kp.Secret)
	fmt.Printf("public: %s\n", kp.Public)
	fmt.Printf("nsec:   %s\n", nsec)
	fmt.Printf("npub:   %s\n", npub)
	return nil
}
