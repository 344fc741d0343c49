// Command keygen prints a fresh base64 master key for TWOFACTOR_MASTER_KEY.
//
//	go run ./cmd/keygen >> .env
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lessonmart/authcore/pkg/secrets"
)

func main() {
	asEnv := flag.Bool("env", true, "print as a TWOFACTOR_MASTER_KEY=... line")
	flag.Parse()

	key, err := secrets.GenerateEncodedKey()
	if err != nil {
		fmt.Fprintln(os.Stderr, "keygen:", err)
		os.Exit(1)
	}

	if *asEnv {
		fmt.Printf("TWOFACTOR_MASTER_KEY=%s\n", key)
		return
	}
	fmt.Println(key)
}
