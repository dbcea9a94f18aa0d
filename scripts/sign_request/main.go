package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"query-streamer/internal/security"
)

func main() {
	gen := flag.Bool("gen", false, "print a new random API secret and exit")
	token := flag.String("token", "", "issue a bearer token for this subject instead of signing")
	ttl := flag.Duration("ttl", time.Hour, "bearer token lifetime")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: sign_request [-gen] [-token subject] <secret> [method path body]")
		fmt.Fprintln(os.Stderr, `Example: sign_request mysecret POST /filmstream '{"offset":0,"limit":10}'`)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *gen {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hex.EncodeToString(b))
		return
	}

	args := flag.Args()
	if *token != "" {
		if len(args) < 1 {
			flag.Usage()
			os.Exit(2)
		}
		tok, err := security.IssueToken(args[0], *token, *ttl)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("Authorization: Bearer %s\n", tok)
		return
	}

	if len(args) < 4 {
		flag.Usage()
		os.Exit(2)
	}
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	fmt.Printf("X-Timestamp: %s\n", timestamp)
	fmt.Printf("X-Signature: %s\n", security.Sign(args[0], args[1], args[2], args[3], timestamp))
}
