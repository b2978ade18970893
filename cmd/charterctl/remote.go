package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// remotesFile is the on-disk list of server profiles, stored as TOML under
// ~/.local/state/charters.
type remotesFile struct {
	Active  string            `toml:"active"`
	Remotes map[string]Remote `toml:"remotes"`
}

// Remote is a named server profile.
type Remote struct {
	URL         string `toml:"url"`
	Token       string `toml:"token,omitempty"`
	GRPCAddr    string `toml:"grpc_addr,omitempty"`
	NATSURL     string `toml:"nats_url,omitempty"`
	Description string `toml:"description,omitempty"`
}

func remotesPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "charters", "remotes.toml"), nil
}

func loadRemotes() (remotesFile, error) {
	rf := remotesFile{Remotes: map[string]Remote{}}
	path, err := remotesPath()
	if err != nil {
		return rf, err
	}
	if _, err := toml.DecodeFile(path, &rf); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return rf, fmt.Errorf("reading %s: %w", path, err)
	}
	if rf.Remotes == nil {
		rf.Remotes = map[string]Remote{}
	}
	return rf, nil
}

func saveRemotes(rf remotesFile) error {
	path, err := remotesPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(rf); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// activeRemote is read once per process; flag defaults consult it.
var activeRemote = sync.OnceValue(func() Remote {
	rf, err := loadRemotes()
	if err != nil || rf.Active == "" {
		return Remote{}
	}
	return rf.Remotes[rf.Active]
})

func activeRemoteURL() string      { return activeRemote().URL }
func activeRemoteToken() string    { return activeRemote().Token }
func activeRemoteGRPCAddr() string { return activeRemote().GRPCAddr }
func activeRemoteNATSURL() string  { return activeRemote().NATSURL }

// maskToken keeps the first eight characters of a token.
func maskToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + strings.Repeat("*", len(token)-8)
}

var remoteCmd = &cobra.Command{
	Use:     "remote",
	Short:   "Manage named server remotes",
	GroupID: "system",
	// Remote subcommands only touch the local file.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add or replace a named remote",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		r := Remote{URL: args[1]}
		r.Token, _ = cmd.Flags().GetString("token")
		r.GRPCAddr, _ = cmd.Flags().GetString("grpc")
		r.NATSURL, _ = cmd.Flags().GetString("nats")
		r.Description, _ = cmd.Flags().GetString("description")

		rf, err := loadRemotes()
		if err != nil {
			return err
		}
		rf.Remotes[args[0]] = r
		if err := saveRemotes(rf); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q added (%s)\n", args[0], r.URL)
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a named remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		rf, err := loadRemotes()
		if err != nil {
			return err
		}
		if _, ok := rf.Remotes[name]; !ok {
			return fmt.Errorf("remote %q not found", name)
		}
		delete(rf.Remotes, name)
		if rf.Active == name {
			rf.Active = ""
		}
		if err := saveRemotes(rf); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q removed\n", name)
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remotes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rf, err := loadRemotes()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(rf.Remotes) == 0 {
			fmt.Fprintln(out, "no remotes configured")
			return nil
		}
		names := make([]string, 0, len(rf.Remotes))
		for name := range rf.Remotes {
			names = append(names, name)
		}
		slices.Sort(names)

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tURL\tTOKEN\tDESCRIPTION")
		for _, name := range names {
			r := rf.Remotes[name]
			marker := "  "
			if name == rf.Active {
				marker = "* "
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\n", marker, name, r.URL, maskToken(r.Token), r.Description)
		}
		return w.Flush()
	},
}

var remoteUseCmd = &cobra.Command{
	Use:   "use [name]",
	Short: "Set the active remote (no args clears it)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rf, err := loadRemotes()
		if err != nil {
			return err
		}
		rf.Active = ""
		if len(args) == 1 {
			if _, ok := rf.Remotes[args[0]]; !ok {
				return fmt.Errorf("remote %q not found", args[0])
			}
			rf.Active = args[0]
		}
		if err := saveRemotes(rf); err != nil {
			return err
		}
		if rf.Active == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "active remote cleared")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "active remote set to %q\n", rf.Active)
		}
		return nil
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a remote (defaults to the active one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rf, err := loadRemotes()
		if err != nil {
			return err
		}
		name := rf.Active
		if len(args) == 1 {
			name = args[0]
		}
		if name == "" {
			return fmt.Errorf("no active remote; specify a name or run 'charterctl remote use <name>'")
		}
		r, ok := rf.Remotes[name]
		if !ok {
			return fmt.Errorf("remote %q not found", name)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		if name == rf.Active {
			name += " (active)"
		}
		fmt.Fprintf(w, "name:\t%s\n", name)
		if r.Description != "" {
			fmt.Fprintf(w, "description:\t%s\n", r.Description)
		}
		fmt.Fprintf(w, "url:\t%s\n", r.URL)
		for _, kv := range [][2]string{
			{"token", maskToken(r.Token)},
			{"grpc_addr", r.GRPCAddr},
			{"nats_url", r.NATSURL},
		} {
			if kv[1] != "" {
				fmt.Fprintf(w, "%s:\t%s\n", kv[0], kv[1])
			}
		}
		return w.Flush()
	},
}

func init() {
	remoteAddCmd.Flags().String("token", "", "bearer token for authentication")
	remoteAddCmd.Flags().String("grpc", "", "gRPC address for health probes")
	remoteAddCmd.Flags().String("nats", "", "NATS URL for watch")
	remoteAddCmd.Flags().String("description", "", "human-readable description")

	remoteCmd.AddCommand(remoteAddCmd, remoteRemoveCmd, remoteListCmd, remoteUseCmd, remoteShowCmd)
}
