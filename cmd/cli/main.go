package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/wadjakorntonsri/nfc-links/pkg/adapters/repository"
	"github.com/wadjakorntonsri/nfc-links/pkg/config"
	"github.com/wadjakorntonsri/nfc-links/pkg/core/domain"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var store repository.Store

	root := &cobra.Command{
		Use:           "nfcctl",
		Short:         "Provision and inspect NFC tags",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err = repository.Open(cfg)
			if err != nil {
				return fmt.Errorf("failed to connect to db: %w", err)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if store == nil {
				return nil
			}
			return store.Close()
		},
	}

	// Subcommands read the store lazily, after PersistentPreRunE opened it.
	get := func() repository.Store { return store }

	root.AddCommand(
		newExportCmd(get),
		newImportCmd(get),
		newLinkCmd(get),
		newResetCmd(get),
		newScansCmd(get),
		newTenantCmd(get),
		newMemberCmd(get),
	)
	return root
}

type storeFunc func() repository.Store

func newExportCmd(store storeFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Dump every non-deleted tag as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := store().Dump(cmd.Context())
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(tags)
		},
	}
}

func newImportCmd(store storeFunc) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create tags from a JSON export, skipping existing uids",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open file: %w", err)
			}
			defer f.Close()

			var tags []domain.Tag
			if err := json.NewDecoder(f).Decode(&tags); err != nil {
				return fmt.Errorf("decode failed: %w", err)
			}

			imported, skipped := importTags(cmd.Context(), store(), tags)
			log.Printf("Imported %d tags, skipped %d", imported, skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON file to import")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func importTags(ctx context.Context, store repository.Store, tags []domain.Tag) (imported, skipped int) {
	for i := range tags {
		t := tags[i]
		err := store.CreateTag(ctx, &t)
		switch {
		case err == nil:
			imported++
		case errors.Is(err, domain.ErrDuplicateTag):
			log.Printf("Skipping existing tag: %s", t.UID)
			skipped++
		default:
			log.Printf("Failed to import %s: %v", t.UID, err)
			skipped++
		}
	}
	return imported, skipped
}

func newLinkCmd(store storeFunc) *cobra.Command {
	var (
		bizcode string
		tenant  string
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Assign a tag to a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			if err := store().AssignTenant(cmd.Context(), bizcode, tenantID, force); err != nil {
				if errors.Is(err, domain.ErrTenantAlreadyLinked) {
					return fmt.Errorf("%w (use --force to move it)", err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "linked %s to %s\n", bizcode, tenantID)
			return nil
		},
	}
	cmd.Flags().StringVar(&bizcode, "bizcode", "", "tag bizcode")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	cmd.Flags().BoolVar(&force, "force", false, "move a tag already linked to another tenant")
	_ = cmd.MarkFlagRequired("bizcode")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newResetCmd(store storeFunc) *cobra.Command {
	var bizcode string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear a tag's custom target so it falls back to the default",
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := store().FindByBizcode(cmd.Context(), bizcode)
			if err != nil {
				return err
			}
			if err := store().UpdateRedirect(cmd.Context(), tag.ID, nil, domain.TagDetails{}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", bizcode)
			return nil
		},
	}
	cmd.Flags().StringVar(&bizcode, "bizcode", "", "tag bizcode")
	_ = cmd.MarkFlagRequired("bizcode")
	return cmd
}

func newScansCmd(store storeFunc) *cobra.Command {
	var (
		bizcode string
		since   time.Duration
		out     string
	)
	cmd := &cobra.Command{
		Use:   "scans",
		Short: "Export a tag's scan history to an Excel workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := store().FindByBizcode(cmd.Context(), bizcode)
			if err != nil {
				return err
			}
			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}
			scans, err := store().ListScans(cmd.Context(), tag.ID, from)
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := writeScansWorkbook(f, tag, scans); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d scans to %s\n", len(scans), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&bizcode, "bizcode", "", "tag bizcode")
	cmd.Flags().DurationVar(&since, "since", 0, "only scans newer than this (e.g. 168h)")
	cmd.Flags().StringVar(&out, "out", "scans.xlsx", "output workbook")
	_ = cmd.MarkFlagRequired("bizcode")
	return cmd
}

func newTenantCmd(store storeFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "tenant", Short: "Manage tenants"}

	var name string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a tenant and print its id",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant := &domain.Tenant{Name: name}
			if err := store().CreateTenant(cmd.Context(), tenant); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tenant.ID)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "tenant name")
	_ = add.MarkFlagRequired("name")

	cmd.AddCommand(add)
	return cmd
}

func newMemberCmd(store storeFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "member", Short: "Manage tenant membership"}

	var tenant, user, role string
	add := &cobra.Command{
		Use:   "add",
		Short: "Grant a user access to a tenant's tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			userID, err := uuid.Parse(user)
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			return store().AddMember(cmd.Context(), tenantID, userID, role)
		},
	}
	add.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	add.Flags().StringVar(&user, "user", "", "user id")
	add.Flags().StringVar(&role, "role", "member", "membership role")
	_ = add.MarkFlagRequired("tenant")
	_ = add.MarkFlagRequired("user")

	cmd.AddCommand(add)
	return cmd
}
