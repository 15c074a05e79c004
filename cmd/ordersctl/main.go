package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grupo-shop/orderflow/internal/app"
	"github.com/grupo-shop/orderflow/internal/catalog"
	"github.com/grupo-shop/orderflow/internal/config"
	"github.com/grupo-shop/orderflow/internal/logging"
	"github.com/grupo-shop/orderflow/internal/orders"
	"github.com/grupo-shop/orderflow/internal/sqlite"
)

var Version = "dev"

// opener builds the app a command runs against.
type opener func(ctx context.Context) (*app.App, error)

func main() {
	if err := newRootCmd(openFromEnv, os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openFromEnv(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.AppEnv)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger)
}

func newRootCmd(open opener, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "ordersctl",
		Short:         "Operate the order store: sweep, inspect and move orders",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	root.AddCommand(sweepCmd(open))
	root.AddCommand(setStatusCmd(open))
	root.AddCommand(trackCmd(open))
	root.AddCommand(listCmd(open))
	root.AddCommand(productsCmd(open))
	return root
}

// withApp opens the app for one command and waits for its background work
// before returning.
func withApp(cmd *cobra.Command, open opener, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.Logger.Warn("close app", zap.Error(cerr))
		}
	}()
	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sweepCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Cancel every pending order past its expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				n, err := a.Engine.SweepExpired(ctx)
				if perr := printJSON(cmd, map[string]int{"cancelled": n}); perr != nil {
					return perr
				}
				return err
			})
		},
	}
}

func setStatusCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <order-id> <status>",
		Short: "Move an order to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				o, err := a.Engine.UpdateStatus(ctx, args[0], orders.Status(args[1]))
				if err != nil {
					return err
				}
				return printJSON(cmd, o)
			})
		},
	}
}

func trackCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "track <order-number>",
		Short: "Show an order by its customer-facing number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				o, err := a.Engine.Track(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, o)
			})
		},
	}
}

func listCmd(open opener) *cobra.Command {
	var (
		status string
		page   int
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.List(ctx, orders.ListQuery{
					Status: orders.Status(status),
					Page:   page,
					Limit:  limit,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, p)
			})
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "Only orders in this status")
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page number")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Orders per page (max 100)")
	return cmd
}

func productsCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Manage the local product catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.json>",
		Short: "Load a JSON array of products into the sqlite catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var products []catalog.Product
			if err := json.Unmarshal(raw, &products); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				local, ok := a.Catalog.(sqlite.Catalog)
				if !ok {
					return fmt.Errorf("products import needs STORE_DRIVER=%s", config.DriverSQLite)
				}
				for _, p := range products {
					if p.ID == "" {
						return fmt.Errorf("product %q has no id", p.Name)
					}
					if err := local.PutProduct(ctx, p); err != nil {
						return fmt.Errorf("put product %s: %w", p.ID, err)
					}
				}
				return printJSON(cmd, map[string]int{"imported": len(products)})
			})
		},
	})
	return cmd
}
