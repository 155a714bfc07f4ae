package main

import (
	"fmt"

	"github.com/dealmesh-protocol/dealmesh/internal/crypto"
)

func main() {
	fmt.Printf("Webhook secret (hex): %s\n", crypto.NewSecret())
}
