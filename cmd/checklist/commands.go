package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"multisigcheck/internal/auth"
	"multisigcheck/internal/catalog"
	"multisigcheck/internal/checklist"
)

// clipboardWriteAll is replaced in tests.
var clipboardWriteAll = clipboard.WriteAll

const signInTimeout = 5 * time.Minute

var errNoReportOpen = errors.New("no report is open; use `checklist report edit <id|url>`")

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "checklist",
		Short: "Multisig security checklist",
		Long: `Track the operational security of a multisig wallet against a checklist
tailored to its threat profile, share read-only reports and sync progress
with your account.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.open(cmd.Context(), cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.interactive {
				return nil
			}
			return c.close()
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", c.configPath, "config file (JSONC)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", c.verbose, "log debug output to stderr")

	root.AddCommand(
		newItemsCmd(c),
		newStatusCmd(c),
		newToggleCmd(c),
		newProfileCmd(c),
		newReportCmd(c),
		newLoginCmd(c),
		newLogoutCmd(c),
		newWhoamiCmd(c),
		newShellCmd(c),
	)
	return root
}

func newItemsCmd(c *cli) *cobra.Command {
	var section string
	cmd := &cobra.Command{
		Use:   "items",
		Short: "List the checklist items for the selected profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if section != "" {
				sec, err := catalog.ParseSection(section)
				if err != nil {
					return err
				}
				printItems(w, c.store, c.store.FilteredItems(sec))
				return nil
			}
			for _, info := range c.store.Catalog().Sections() {
				items := c.store.FilteredItems(info.ID)
				if len(items) == 0 {
					continue
				}
				p := c.store.Progress(info.ID)
				fmt.Fprintf(w, "## %s (%d/%d, %d%%)\n", info.Title, p.Completed, p.Total, p.Percentage)
				printItems(w, c.store, items)
				fmt.Fprintln(w)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&section, "section", "s", "", "only list one section")
	return cmd
}

func printItems(w io.Writer, store *checklist.Store, items []catalog.Item) {
	for _, it := range items {
		mark := " "
		if store.IsCompleted(it.ID) {
			mark = "x"
		}
		fmt.Fprintf(w, "[%s] %-28s %-11s %s\n", mark, it.ID, it.Priority, it.Text)
	}
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the profile, progress and session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printStatus(cmd.OutOrStdout(), c.store)
			return nil
		},
	}
}

func printStatus(w io.Writer, store *checklist.Store) {
	profile := store.SelectedProfile()
	fmt.Fprintf(w, "Profile:  %s (%s)\n", profile, profile.Label())
	if d, ok := store.ReportDetails(); ok && store.IsReadOnly() {
		fmt.Fprintf(w, "Report:   %s (read-only)\n", d.MultisigName)
		if d.Reviewer != "" {
			fmt.Fprintf(w, "Reviewer: %s\n", d.Reviewer)
		}
		if d.TransactionHash != "" {
			fmt.Fprintf(w, "Tx hash:  %s\n", d.TransactionHash)
		}
	}
	if id := store.UserID(); id != "" {
		fmt.Fprintf(w, "Account:  %s\n", id)
	} else {
		fmt.Fprintln(w, "Account:  guest")
	}
	total := store.TotalProgress()
	critical := store.CriticalProgress()
	fmt.Fprintf(w, "Overall:  %d/%d (%d%%)\n", total.Completed, total.Total, total.Percentage)
	fmt.Fprintf(w, "Critical: %d/%d (%d%%)\n", critical.Completed, critical.Total, critical.Percentage)
}

func newToggleCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <item-id>...",
		Short: "Mark items done, or undone when already done",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if _, ok := c.store.Catalog().Lookup(id); !ok {
					return fmt.Errorf("unknown item %q", id)
				}
			}
			for _, id := range args {
				if err := c.store.Toggle(id); err != nil {
					return err
				}
				state := "open"
				if c.store.IsCompleted(id) {
					state = "done"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", id, state)
			}
			return nil
		},
	}
}

func newProfileCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:       "profile [signer|small|medium|large]",
		Short:     "Show or change the threat profile",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"signer", "small", "medium", "large"},
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, p := range catalog.Profiles {
					mark := " "
					if p == c.store.SelectedProfile() {
						mark = "*"
					}
					fmt.Fprintf(w, "%s %-7s %s\n", mark, p, p.Label())
				}
				return nil
			}
			p, err := catalog.ParseProfile(args[0])
			if err != nil {
				return err
			}
			if err := c.store.SetSelectedProfile(p); err != nil {
				return err
			}
			fmt.Fprintf(w, "Profile set to %s (%s)\n", p, p.Label())
			return nil
		},
	}
}

func newReportCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Open and share read-only reports",
	}

	open := &cobra.Command{
		Use:   "open <id|url>",
		Short: "Display a shared report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := checklist.ReportIDFromURL(args[0])
			if id == "" {
				return fmt.Errorf("no report id in %q", args[0])
			}
			if err := c.store.LoadSharedReport(cmd.Context(), id); err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), c.store)
			return nil
		},
	}

	edit := &cobra.Command{
		Use:   "edit [id|url]",
		Short: "Continue from a report's items as your own progress",
		Long: `Leave the report view and keep editing its items. Outside the shell no
report stays open between commands, so pass the report to start from.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				id := checklist.ReportIDFromURL(args[0])
				if id == "" {
					return fmt.Errorf("no report id in %q", args[0])
				}
				if err := c.store.LoadSharedReport(cmd.Context(), id); err != nil {
					return err
				}
			}
			if !c.store.IsReadOnly() {
				return errNoReportOpen
			}
			if err := c.store.SetReadOnly(false); err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), c.store)
			return nil
		},
	}

	var req checklist.ShareRequest
	share := &cobra.Command{
		Use:   "share",
		Short: "Store the current progress as a report and copy its link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := c.store.CreateReport(cmd.Context(), req)
			if err != nil {
				return err
			}
			link, err := checklist.ShareURL(c.cfg.Client.ShareBaseURL, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			if err := clipboardWriteAll(link); err != nil {
				c.logger.Debug("clipboard unavailable")
				return nil
			}
			c.notify(checklist.LinkCopiedNotice)
			return nil
		},
	}
	share.Flags().StringVar(&req.Name, "name", "", "multisig name (required)")
	share.Flags().StringVar(&req.Reviewer, "reviewer", "", "reviewer name")
	share.Flags().StringVar(&req.TransactionHash, "tx", "", "transaction hash under review")

	cmd.AddCommand(open, edit, share)
	return cmd
}

func newLoginCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:       "login <google|github>",
		Short:     "Sign in to sync progress with your account",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(auth.ProviderGoogle), string(auth.ProviderGitHub)},
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := auth.ParseProvider(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), signInTimeout)
			defer cancel()
			if err := c.store.SignIn(ctx, p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", c.store.UserID())
			return nil
		},
	}
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Save progress and sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.store.SignOut(cmd.Context())
		},
	}
}

func newWhoamiCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			sess, err := c.auth.GetSession(cmd.Context())
			if err != nil {
				return err
			}
			if sess == nil {
				if c.cfg.Client.BackendURL == "" {
					fmt.Fprintln(w, "Not signed in (no backend configured)")
					return nil
				}
				fmt.Fprintln(w, "Not signed in")
				return nil
			}
			name := strings.TrimSpace(sess.Name)
			if name == "" {
				name = sess.Email
			}
			fmt.Fprintf(w, "%s <%s> via %s\n", name, sess.Email, sess.Provider)
			fmt.Fprintf(w, "Account: %s\n", sess.UserID)
			if !sess.ExpiresAt.IsZero() {
				fmt.Fprintf(w, "Expires: %s\n", sess.ExpiresAt.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}
