package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nosdois/duet/internal/config"
	"github.com/nosdois/duet/internal/store"
)

// coupleCmd manages couple registrations: the binding between a WhatsApp
// group and the two partners the mediator addresses by name.
func coupleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "couple",
		Short: "Manage couple registrations",
	}
	cmd.AddCommand(coupleAddCmd())
	cmd.AddCommand(coupleActivateCmd())
	return cmd
}

func openStore() (*store.Store, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	return store.Open(config.ExpandHome(cfg.Store.Path))
}

func coupleAddCmd() *cobra.Command {
	var (
		userName, userPhone       string
		partnerName, partnerPhone string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new couple (pending until activated)",
		Run: func(cmd *cobra.Command, args []string) {
			db, err := openStore()
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				os.Exit(1)
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			id, err := db.SaveCouple(ctx, store.Couple{
				UserName:     userName,
				UserPhone:    userPhone,
				PartnerName:  partnerName,
				PartnerPhone: partnerPhone,
			})
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				os.Exit(1)
			}
			fmt.Printf("couple %d registered (pending)\n", id)
		},
	}

	cmd.Flags().StringVar(&userName, "user-name", "", "first partner's display name")
	cmd.Flags().StringVar(&userPhone, "user-phone", "", "first partner's phone (digits only)")
	cmd.Flags().StringVar(&partnerName, "partner-name", "", "second partner's display name")
	cmd.Flags().StringVar(&partnerPhone, "partner-phone", "", "second partner's phone (digits only)")
	cmd.MarkFlagRequired("user-name")
	cmd.MarkFlagRequired("user-phone")
	cmd.MarkFlagRequired("partner-name")
	cmd.MarkFlagRequired("partner-phone")

	return cmd
}

func coupleActivateCmd() *cobra.Command {
	var groupJID string

	cmd := &cobra.Command{
		Use:   "activate <couple-id>",
		Short: "Bind a couple to its WhatsApp group and activate it",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var id int64
			if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
				fmt.Fprintln(os.Stderr, "error: couple-id must be a number")
				os.Exit(1)
			}

			db, err := openStore()
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				os.Exit(1)
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := db.ActivateCouple(ctx, id, groupJID); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				os.Exit(1)
			}
			fmt.Printf("couple %d active on %s\n", id, groupJID)
		},
	}

	cmd.Flags().StringVar(&groupJID, "group", "", "WhatsApp group JID (…@g.us)")
	cmd.MarkFlagRequired("group")

	return cmd
}
