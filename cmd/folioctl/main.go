package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

const usage = `folioctl - admin CLI for the folio authentication service

Usage:
  folioctl [flags] <command> [args]

Commands:
  login                 Log in and store the session locally
  whoami                Show the account behind the stored session
  logout                Invalidate the stored session
  register <username>   Create a new account (admin only)
  setup-2fa             Enrol the stored session in two-factor authentication
  disable-2fa           Remove two-factor authentication from the account

Flags:
  -server URL           Auth service base URL (default: $FOLIO_SERVER or http://localhost:8080)
  -creds PATH           Credential file path (default: ~/.folioctl.db)
`

func main() {
	// Load .env if present; real env vars win
	_ = godotenv.Load()

	serverFlag := flag.String("server", "", "auth service base URL")
	credsFlag := flag.String("creds", "", "credential file path")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cli, err := newCLI(*serverFlag, *credsFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer cli.Close()

	if err := cli.Run(flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
