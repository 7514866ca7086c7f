package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/branchauth"
	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Authenticate against the remote and persist the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := a.v.GetString("password")
			if password == "" {
				return errors.New("password is required (--password or BRANCHCTL_PASSWORD)")
			}
			st, err := a.engine.Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			return a.print(cmd, viewOf(st), fmt.Sprintf("logged in as %s", st.User.User.Name))
		},
	}
	cmd.Flags().StringP("password", "p", "", "account password")
	_ = a.v.BindPFlag("password", cmd.Flags().Lookup("password"))
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete the session, the stored user and the PIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.engine.Logout(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(cmd, viewOf(st), "logged out")
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Re-validate the stored session against the remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := a.engine.CheckToken(cmd.Context())
			plain := st.Status.String()
			if st.User != nil {
				plain = fmt.Sprintf("%s (%s)", plain, st.User.User.Email)
			}
			if st.Locked {
				plain += ", locked"
			}
			return a.print(cmd, viewOf(st), plain)
		},
	}
}

func newBranchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "List, show or select the working branch",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the branches of the current user",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				b, err := a.engine.Branches(cmd.Context())
				if err != nil {
					return err
				}
				var sb strings.Builder
				for i, br := range b.Available {
					if i > 0 {
						sb.WriteByte('\n')
					}
					mark := " "
					if string(br.ID) == b.Selected {
						mark = "*"
					}
					fmt.Fprintf(&sb, "%s %s\t%s", mark, br.ID, br.Branch)
				}
				return a.print(cmd, b, sb.String())
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the selected branch",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				b, err := a.engine.Branches(cmd.Context())
				if err != nil {
					return err
				}
				if b.Selected == "" {
					return a.print(cmd, b, "no branch selected")
				}
				return a.print(cmd, b, b.Selected)
			},
		},
		&cobra.Command{
			Use:   "select <id>",
			Short: "Select one of the current user's branches",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.engine.SelectBranch(cmd.Context(), args[0]); err != nil {
					return err
				}
				return a.print(cmd, map[string]string{"selected": args[0]}, "selected branch "+args[0])
			},
		},
	)
	return cmd
}

func newRequestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request <action> [key=value...]",
		Short: "Send an authenticated action to the remote",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, err := parseFields(args[1:])
			if err != nil {
				return err
			}
			endpoint, _ := cmd.Flags().GetString("endpoint")
			if endpoint == "" {
				endpoint = args[0]
			}
			data, err := a.engine.Request(cmd.Context(), endpoint, args[0], extra)
			if err != nil {
				return err
			}
			return a.print(cmd, data, "")
		},
	}
	cmd.Flags().StringP("endpoint", "e", "", "endpoint relative to the base URL (defaults to the action)")
	return cmd
}

func newRefDataCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refdata <kind>",
		Short: "Print a cached reference list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refresh, _ := cmd.Flags().GetBool("refresh")
			items, err := a.engine.ReferenceData(cmd.Context(), args[0], refresh)
			if err != nil {
				return err
			}
			return a.print(cmd, items, "")
		},
	}
	cmd.Flags().Bool("refresh", false, "bypass the cache")
	return cmd
}

func newPINCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pin",
		Short: "Manage the local unlock PIN",
	}
	cmd.PersistentFlags().String("current", "", "current PIN, needed when one is already set")

	// restore runs CheckToken and, when the restored session is locked, unlocks it with --current.
	restore := func(cmd *cobra.Command) error {
		st := a.engine.CheckToken(cmd.Context())
		if !st.IsAuthenticated() {
			return branchauth.ErrNotAuthenticated
		}
		if !st.Locked {
			return nil
		}
		current, _ := cmd.Flags().GetString("current")
		if current == "" {
			return errors.New("a PIN is set; pass it with --current")
		}
		_, err := a.engine.UnlockWithPIN(cmd.Context(), current)
		return err
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <pin>",
			Short: "Store a 4 to 8 digit PIN",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := restore(cmd); err != nil {
					return err
				}
				st, err := a.engine.SetPIN(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.print(cmd, viewOf(st), "pin set")
			},
		},
		&cobra.Command{
			Use:   "check <pin>",
			Short: "Check a PIN against the stored hash",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if st := a.engine.CheckToken(cmd.Context()); !st.IsAuthenticated() {
					return branchauth.ErrNotAuthenticated
				}
				st, err := a.engine.UnlockWithPIN(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.print(cmd, viewOf(st), "pin accepted")
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove the stored PIN",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := restore(cmd); err != nil {
					return err
				}
				st, err := a.engine.ClearPIN(cmd.Context())
				if err != nil {
					return err
				}
				return a.print(cmd, viewOf(st), "pin cleared")
			},
		},
	)
	return cmd
}

// parseFields turns key=value arguments into request fields. Values that parse as JSON keep
// their JSON type; anything else is sent as a string.
func parseFields(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("field %q is not key=value", arg)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
			continue
		}
		out[k] = v
	}
	return out, nil
}
