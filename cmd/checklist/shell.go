package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

func newShellCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session that keeps one checklist open",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.interactive {
				return errors.New("already in a shell")
			}
			c.interactive = true
			defer func() { c.interactive = false }()
			return runShell(cmd, c)
		},
	}
}

func runShell(cmd *cobra.Command, c *cli) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(input string) []string {
		var out []string
		for _, sub := range newRootCmd(c).Commands() {
			if strings.HasPrefix(sub.Name(), input) {
				out = append(out, sub.Name())
			}
		}
		return out
	})

	history := filepath.Join(c.cfg.Client.StateDir, "history")
	if f, err := os.Open(history); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(history); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Type 'help' for commands, 'exit' to quit.")
	for {
		input, err := line.Prompt("checklist> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch input {
		case "exit", "quit", "q":
			return nil
		}
		if err := runLine(cmd, c, strings.Fields(input)); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		if ctxErr := cmd.Context().Err(); ctxErr != nil {
			return nil
		}
	}
}

// runLine executes one shell line against a fresh command tree so flag
// values do not leak between lines.
func runLine(cmd *cobra.Command, c *cli, args []string) error {
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(cmd.OutOrStdout())
	root.SetErr(cmd.ErrOrStderr())
	return root.ExecuteContext(cmd.Context())
}
