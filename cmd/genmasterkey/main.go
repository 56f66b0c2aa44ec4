// Command genmasterkey writes a new random master key as hex.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"multisigcheck/internal/backend"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := flag.NewFlagSet("genmasterkey", flag.ContinueOnError)
	out := flagSet.StringP("out", "o", "master.key", "key file to write")
	force := flagSet.Bool("force", false, "overwrite an existing key file")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(*out); err == nil && !*force {
		return fmt.Errorf("%s already exists. Refusing to overwrite", *out)
	}
	hexKey, err := backend.GenerateMasterKey()
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, []byte(hexKey+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", *out, err)
	}
	fmt.Printf("Master key written to %s\n", *out)
	return nil
}
