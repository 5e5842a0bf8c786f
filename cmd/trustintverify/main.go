// Command trustintverify is an offline auditor for the provenance ledger.
// It re-derives the HMAC chain over every line of a ledger file and
// reports the first break, if any. Exit codes: 0 pass, 1 chain broken
// (line number on stderr), 2 argument or I/O error before verification
// begins.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/trustint/trustint/internal/keys"
	"github.com/trustint/trustint/internal/ledger"
)

func main() {
	os.Exit(run())
}

func run() int {
	ledgerPath := flag.String("ledger", "vault/events.jsonl", "path to the ledger file to verify")
	keyPath := flag.String("key-file", "vault/.hmac_key", "path to the HMAC key file")
	flag.Parse()

	keyResult, err := keys.Load(*keyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trustintverify: load key: %v\n", err)
		return 2
	}

	count, err := ledger.Verify(*ledgerPath, keyResult.Key)
	if err != nil {
		var chainErr *ledger.ChainError
		if errors.As(err, &chainErr) {
			fmt.Fprintf(os.Stderr, "trustintverify: chain broken at line %d: %s\n", chainErr.Line, chainErr.Reason)
			return 1
		}
		fmt.Fprintf(os.Stderr, "trustintverify: %v\n", err)
		return 2
	}

	fmt.Printf("trustintverify: PASS (%d events verified)\n", count)
	return 0
}
