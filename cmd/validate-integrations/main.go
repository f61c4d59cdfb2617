package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/marcelsud/commerce-webhooks/integration"
)

/* validate-integrations - Standalone CLI tool to validate integrations.yaml
 * Usage: go run cmd/validate-integrations/main.go [integrations.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 */

func main() {
	// Get integrations file path from args or use default
	file := "integrations.yaml"
	if len(os.Args) > 1 {
		file = os.Args[1]
	}

	fmt.Printf("Validating integrations file: %s\n", file)
	fmt.Println(strings.Repeat("-", 50))

	source := integration.NewFileSource()
	if err := source.Load(file); err != nil {
		fmt.Fprintf(os.Stderr, "❌ VALIDATION FAILED\n\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	loaded := source.List()
	fmt.Printf("✓ VALIDATION PASSED\n\n")
	fmt.Printf("Loaded %d integration(s):\n", len(loaded))

	for i, in := range loaded {
		fmt.Printf("\n%d. Integration: %s\n", i+1, in.ID)
		fmt.Printf("   Tenant:      %s\n", in.TenantID)
		fmt.Printf("   Shop domain: %s\n", in.ShopDomain)
		fmt.Printf("   Active:      %t\n", in.Active)
		fmt.Printf("   Secret:      %s\n", mask(in.Secret))
	}

	fmt.Printf("\n✓ All integrations are valid!\n")
	os.Exit(0)
}

// mask keeps the last four characters of a secret
func mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}
