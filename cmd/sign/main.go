package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/marcelsud/commerce-webhooks/webhook/dispatch"
	"github.com/marcelsud/commerce-webhooks/webhook/signature"
)

/* sign - prints the signatures a platform would send for a body
 * Usage: go run cmd/sign/main.go -secret <shared secret> [body.json]
 *        go run cmd/sign/main.go -generate   (new FORWARD_SECRET)
 * Reads stdin when no file is given. Useful to replay deliveries by hand.
 */

func main() {
	secret := flag.String("secret", os.Getenv("WEBHOOK_SECRET"), "integration shared secret")
	generate := flag.Bool("generate", false, "print a new whsec_ secret for forwarding and exit")
	flag.Parse()

	if *generate {
		s, err := dispatch.NewForwardKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Error generating secret: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(s)
		return
	}

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "❌ -secret or WEBHOOK_SECRET is required")
		os.Exit(1)
	}

	var (
		body []byte
		err  error
	)
	if flag.NArg() > 0 {
		body, err = os.ReadFile(flag.Arg(0))
	} else {
		body, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error reading body: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("base64: %s\n", signature.EncodeBase64(body, *secret))
	fmt.Printf("hex:    %s\n", signature.EncodeHex(body, *secret))
}
