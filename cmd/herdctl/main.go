// Command herdctl is a small operator tool for a herdbook MySQL database.
// It reads the same environment (and .env) as the server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/iliyamo/herdbook/internal/config"
	"github.com/iliyamo/herdbook/internal/database"
	"github.com/iliyamo/herdbook/internal/model"
	"github.com/iliyamo/herdbook/internal/repository"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "herdctl",
		Short:        "Inspect a herdbook database",
		SilenceUsage: true,
	}
	timeout := root.PersistentFlags().Duration("timeout", 10*time.Second, "overall deadline for the command")

	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Ping the database and list its tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), *timeout, func(ctx context.Context, db *sql.DB) error {
				return runCheck(ctx, db, cmd.OutOrStdout())
			})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Print every user and animal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), *timeout, func(ctx context.Context, db *sql.DB) error {
				return runDump(ctx, db, cmd.OutOrStdout())
			})
		},
	})
	return root
}

func withDB(parent context.Context, timeout time.Duration, fn func(context.Context, *sql.DB) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	cfg, err := config.LoadDatabase()
	if err != nil {
		return err
	}
	if cfg.StoreDriver != config.StoreMySQL {
		return fmt.Errorf("herdctl needs STORE_DRIVER=%s, got %q", config.StoreMySQL, cfg.StoreDriver)
	}
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, db)
}

func runCheck(ctx context.Context, db *sql.DB, out io.Writer) error {
	rows, err := db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	fmt.Fprintln(out, "database reachable")
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan table name: %w", err)
		}
		fmt.Fprintln(out, "  "+name)
	}
	return rows.Err()
}

func runDump(ctx context.Context, db *sql.DB, out io.Writer) error {
	users, err := repository.NewUserRepo(db).List(ctx)
	if err != nil {
		return err
	}
	animals, err := repository.NewAnimalRepo(db).ListAll(ctx)
	if err != nil {
		return err
	}
	writeDump(out, users, animals)
	return nil
}

func writeDump(out io.Writer, users []model.User, animals []model.Animal) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERS")
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tVERIFIED\tCREATED")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\n", u.ID, u.Name, u.Email, u.EmailVerified, u.CreatedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "ANIMALS")
	fmt.Fprintln(tw, "ID\tOWNER\tNUMBER\tTYPE\tBORN\tSTATUS\tGENDER\tIMAGE\tCREATED")
	for _, a := range animals {
		img := a.Image
		if img == "" {
			img = "-"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.OwnerID, a.Number, a.Type, a.BirthDate.Format(model.DateLayout),
			a.Status, a.Gender, img, a.CreatedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "total users: %d\ttotal animals: %d\n", len(users), len(animals))
	_ = tw.Flush()
}
