package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"shortsbot/internal/domain"
	"shortsbot/internal/registry"

	"github.com/spf13/cobra"
)

// exportedUser is the JSON-lines shape written by `users export`.
type exportedUser struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName,omitempty"`
	FirstSeen time.Time `json:"firstSeen"`
}

func openRegistry() (*registry.SQLStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return registry.Open(cfg.Database.Driver, cfg.Database.DSN, logger)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending user registry migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRegistry()
			if err != nil {
				return err
			}
			defer store.Close()

			version, err := registry.GetSchemaVersion(store.DB())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", version, store.Driver())
			return nil
		},
	}
}

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect the user registry",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "count",
		Short: "Print the number of registered users",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRegistry()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.CountUsers(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get [id]",
		Short: "Show a registered user by Telegram id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			store, err := openRegistry()
			if err != nil {
				return err
			}
			defer store.Close()

			u, err := store.GetUser(cmd.Context(), id)
			if err != nil {
				return err
			}
			if u == nil {
				return fmt.Errorf("user %d not found", id)
			}
			data, _ := json.MarshalIndent(toExported(*u), "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	var output string
	export := &cobra.Command{
		Use:   "export",
		Short: "Export all users as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRegistry()
			if err != nil {
				return err
			}
			defer store.Close()

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			n, err := exportUsers(cmd.Context(), store, w)
			if err != nil {
				return err
			}
			logger.Info("users exported", "count", n, "output", output)
			return nil
		},
	}
	export.Flags().StringVarP(&output, "output", "o", "-", "output file (- for stdout)")
	cmd.AddCommand(export)

	return cmd
}

type userIterator interface {
	EachUser(ctx context.Context, fn func(domain.User) error) error
}

func exportUsers(ctx context.Context, src userIterator, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	err := src.EachUser(ctx, func(u domain.User) error {
		n++
		return enc.Encode(toExported(u))
	})
	return n, err
}

func toExported(u domain.User) exportedUser {
	return exportedUser{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		FirstSeen: u.FirstSeen.UTC(),
	}
}
