package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/marcelsud/commerce-webhooks/config"
	"github.com/marcelsud/commerce-webhooks/integration"
	"github.com/marcelsud/commerce-webhooks/webhook/postgres"
)

/* migrate - creates the PostgreSQL schema
 * Usage: go run cmd/migrate/main.go [-seed integrations.yaml] [-drop]
 * -seed upserts the integrations of a YAML file into the integrations table
 * -drop removes every table first
 */

func main() {
	seed := flag.String("seed", "", "integrations YAML file to load into the database")
	drop := flag.Bool("drop", false, "drop all tables before migrating")
	flag.Parse()

	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error loading config: %v\n", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "❌ DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error connecting to PostgreSQL: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if *drop {
		if err := postgres.Drop(ctx, db); err != nil {
			fmt.Fprintf(os.Stderr, "❌ Error dropping schema: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✓ Tables dropped")
	}

	if err := postgres.Migrate(ctx, db); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error migrating: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Schema up to date")

	if *seed == "" {
		return
	}
	fs := integration.NewFileSource()
	if err := fs.Load(*seed); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error loading %s: %v\n", *seed, err)
		os.Exit(1)
	}
	source := integration.NewPostgresSource(db)
	now := time.Now().UTC()
	for _, in := range fs.List() {
		if err := source.Save(ctx, in, now); err != nil {
			fmt.Fprintf(os.Stderr, "❌ Error saving integration %s: %v\n", in.ID, err)
			os.Exit(1)
		}
		fmt.Printf("✓ Integration %s (%s)\n", in.ID, in.ShopDomain)
	}
}
