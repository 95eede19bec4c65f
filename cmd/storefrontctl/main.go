// Command storefrontctl is the operator CLI: schema migrations, offline price
// quotes, VAT number checks and currency conversions.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v3"

	"github.com/foodsafe/storefront/internal/catalog"
	"github.com/foodsafe/storefront/internal/currency"
	"github.com/foodsafe/storefront/internal/order"
	"github.com/foodsafe/storefront/internal/pricing"
	"github.com/foodsafe/storefront/internal/vat"
)

func main() {
	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "storefrontctl",
		Usage: "operate the storefront backend",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "manage the order database schema",
				Commands: []*cli.Command{
					{
						Name:  "up",
						Usage: "apply all pending migrations",
						Flags: []cli.Flag{databaseURLFlag()},
						Action: func(ctx context.Context, c *cli.Command) error {
							dsn, err := requireDSN(c)
							if err != nil {
								return err
							}
							if err := order.Migrate(dsn); err != nil {
								return err
							}
							fmt.Fprintln(out, "migrations applied")
							return nil
						},
					},
					{
						Name:      "down",
						Usage:     "roll back migrations",
						ArgsUsage: "[steps]",
						Flags:     []cli.Flag{databaseURLFlag()},
						Action: func(ctx context.Context, c *cli.Command) error {
							dsn, err := requireDSN(c)
							if err != nil {
								return err
							}
							steps := 1
							if arg := c.Args().First(); arg != "" {
								steps, err = strconv.Atoi(arg)
								if err != nil || steps <= 0 {
									return fmt.Errorf("steps must be a positive integer, got %q", arg)
								}
							}
							if err := order.MigrateDown(dsn, steps); err != nil {
								return err
							}
							fmt.Fprintf(out, "rolled back %d migration(s)\n", steps)
							return nil
						},
					},
					{
						Name:  "version",
						Usage: "print the current schema version",
						Flags: []cli.Flag{databaseURLFlag()},
						Action: func(ctx context.Context, c *cli.Command) error {
							dsn, err := requireDSN(c)
							if err != nil {
								return err
							}
							version, dirty, err := order.MigrationVersion(dsn)
							if err != nil {
								return err
							}
							fmt.Fprintf(out, "version=%d dirty=%t\n", version, dirty)
							return nil
						},
					},
				},
			},
			{
				Name:      "quote",
				Usage:     "price a basket offline using the catalog file",
				ArgsUsage: "variantId[:qty] ...",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "catalog", Value: "configs/catalog.json", Sources: cli.EnvVars("CATALOG_FILE")},
					&cli.StringFlag{Name: "country", Usage: "ISO country code, blank for the default market"},
					&cli.StringFlag{Name: "vat-number"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					products, err := catalog.LoadFile(c.String("catalog"))
					if err != nil {
						return err
					}
					summary, err := quote(ctx, products, pricing.DefaultRules(), c.Args().Slice(), c.String("country"), c.String("vat-number"))
					if err != nil {
						return err
					}
					return writeJSON(out, summary)
				},
			},
			{
				Name:      "vat",
				Usage:     "check the format of a VAT number",
				ArgsUsage: "number",
				Action: func(ctx context.Context, c *cli.Command) error {
					raw := strings.Join(c.Args().Slice(), " ")
					res := vat.Validate(raw)
					return writeJSON(out, map[string]any{
						"isValid":    res.IsValid,
						"country":    res.Country,
						"normalized": res.Normalized,
						"formatted":  vat.Format(raw),
						"error":      res.Error,
					})
				},
			},
			{
				Name:      "convert",
				Usage:     "convert a canonical price into a display currency",
				ArgsUsage: "amount",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "to", Required: true},
					&cli.StringFlag{Name: "redis-url", Usage: "read shared rates from Redis; defaults apply when unset", Sources: cli.EnvVars("REDIS_URL")},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					amount, err := decimal.NewFromString(strings.TrimSpace(c.Args().First()))
					if err != nil {
						return fmt.Errorf("invalid amount %q", c.Args().First())
					}
					var client *redis.Client
					if url := c.String("redis-url"); url != "" {
						opts, err := redis.ParseURL(url)
						if err != nil {
							return err
						}
						client = redis.NewClient(opts)
						defer client.Close()
					}
					rules := pricing.DefaultRules()
					snap := currency.NewCache(client, rules.Currency, 0, zerolog.Nop()).Current(ctx)
					conv := currency.Converter{Canonical: rules.Currency, Logger: zerolog.Nop()}
					target := strings.ToUpper(c.String("to"))
					return writeJSON(out, map[string]any{
						"amount":   conv.Convert(amount, target, snap.Rates),
						"currency": target,
						"source":   snap.Source,
						"date":     snap.Date,
					})
				},
			},
		},
	}
}

func databaseURLFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "database-url",
		Usage:   "Postgres connection string",
		Sources: cli.EnvVars("DATABASE_URL"),
	}
}

func requireDSN(c *cli.Command) (string, error) {
	dsn := strings.TrimSpace(c.String("database-url"))
	if dsn == "" {
		return "", errors.New("DATABASE_URL or --database-url is required")
	}
	return dsn, nil
}

// quote prices items given as "variantId" or "variantId:qty".
func quote(ctx context.Context, products *catalog.Static, rules pricing.Rules, items []string, country, vatNumber string) (pricing.Summary, error) {
	if len(items) == 0 {
		return pricing.Summary{}, errors.New("at least one variant is required")
	}
	lines := make([]pricing.Line, 0, len(items))
	for _, item := range items {
		id, rawQty, hasQty := strings.Cut(item, ":")
		qty := 1
		if hasQty {
			n, err := strconv.Atoi(rawQty)
			if err != nil || n <= 0 {
				return pricing.Summary{}, fmt.Errorf("invalid quantity in %q", item)
			}
			qty = n
		}
		li, err := products.Variant(ctx, id)
		if err != nil {
			return pricing.Summary{}, fmt.Errorf("variant %s: %w", id, err)
		}
		lines = append(lines, pricing.Line{UnitPrice: li.UnitPrice, Qty: qty})
	}
	return rules.Compute(lines, country, vatNumber), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
