package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dealmesh-protocol/dealmesh/internal/crypto"
)

// Signs or verifies a webhook payload the way the dispatcher does, for
// testing receiver implementations against known-good signatures.
func main() {
	secret := flag.String("secret", "", "Webhook secret")
	bodyFile := flag.String("body", "", "File containing request body (or use stdin)")
	verify := flag.String("verify", "", "Signature to verify instead of signing")
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -secret <webhook-secret> [-body <file>] [-verify <signature>]")
		fmt.Fprintln(os.Stderr, "  Reads body from stdin if -body not specified")
		os.Exit(1)
	}

	var body []byte
	var err error
	if *bodyFile != "" {
		body, err = os.ReadFile(*bodyFile)
	} else {
		body, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read body: %v\n", err)
		os.Exit(1)
	}

	if *verify != "" {
		if crypto.Verify(body, *secret, *verify) {
			fmt.Println("signature valid")
			return
		}
		fmt.Fprintln(os.Stderr, "signature INVALID")
		os.Exit(1)
	}

	fmt.Println(crypto.Sign(body, *secret))
}
