// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/oneconcern/revstore/pkg/core"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/spf13/cobra"
)

// branchCmd represents the branch related commands
var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Commands to manage branches",
	Long: `Commands to manage the tree of branches.

Branches are designated by their path from the root branch, e.g. MAIN/project/task.
`,
}

func splitPath(path string) (string, string, error) {
	i := strings.LastIndex(path, model.PathSeparator)
	if i <= 0 || i == len(path)-1 {
		return "", "", fmt.Errorf("%q is not the path of a child branch", path)
	}
	return path[:i], path[i+1:], nil
}

var branchCreate = &cobra.Command{
	Use:     "create <path>",
	Short:   "Create a branch",
	Long:    `Create a branch at the head of its parent branch.`,
	Example: `% revstore branch create MAIN/project --metadata owner=jdoe`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, name, err := splitPath(args[0])
		if err != nil {
			return err
		}
		return withRepo(cmd, func(repo *core.Repo) error {
			b, err := repo.Branches().Create(cmd.Context(), parent, name, revstoreFlags.branch.Metadata)
			if err != nil {
				return wrapError("create branch", err)
			}
			return print(cmd, b)
		})
	},
}

var branchDelete = &cobra.Command{
	Use:   "delete <path>",
	Short: "Delete a branch and all its descendants",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd, func(repo *core.Repo) error {
			if err := repo.Branches().Delete(cmd.Context(), args[0]); err != nil {
				return wrapError("delete branch", err)
			}
			out(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		})
	},
}

var branchGet = &cobra.Command{
	Use:   "get <path>",
	Short: "Get a branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd, func(repo *core.Repo) error {
			b, err := repo.Branches().Get(args[0])
			if err != nil {
				return wrapError("get branch", err)
			}
			return print(cmd, b)
		})
	},
}

var branchMetadata = &cobra.Command{
	Use:     "metadata <path>",
	Short:   "Replace the metadata of a branch",
	Example: `% revstore branch metadata MAIN/project --metadata owner=jdoe,reviewer=asmith`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd, func(repo *core.Repo) error {
			b, err := repo.Branches().UpdateMetadata(cmd.Context(), args[0], revstoreFlags.branch.Metadata)
			if err != nil {
				return wrapError("update metadata", err)
			}
			return print(cmd, b)
		})
	},
}

var branchList = &cobra.Command{
	Use:   "list",
	Short: "List the branches",
	Long:  `List all the branches. Deleted branches are marked with a "-".`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd, func(repo *core.Repo) error {
			branches, err := repo.Branches().List()
			if err != nil {
				return wrapError("list branches", err)
			}
			return print(cmd, branches)
		})
	},
}

func branchListFormatter() FormatterFunc {
	return func(w io.Writer, data interface{}) error {
		table := newTable("", "PATH", "HEAD", "BASE", "CREATED")
		for _, b := range data.(model.Branches) {
			mark := " "
			if b.Deleted {
				mark = color.RedString("-")
			}
			base := "-"
			if !b.IsRoot() {
				base = b.Base.String()
			}
			table.AddRow(mark, b.Path, color.YellowString("@%d", b.HeadTimestamp), base, age(b.CreatedAt))
		}
		return writeTable(w, table)
	}
}

func branchFormatter() FormatterFunc {
	return func(w io.Writer, data interface{}) error {
		b := data.(model.Branch)
		fmt.Fprintf(w, "%s (id %d)\n", color.MagentaString(b.Path), b.ID)
		if !b.IsRoot() {
			fmt.Fprintf(w, "   Base: %s\n", b.Base)
		}
		fmt.Fprintf(w, "   Head: %s\n", color.YellowString("%d", b.HeadTimestamp))
		if b.Deleted {
			fmt.Fprintln(w, color.RedString("   Deleted"))
		}
		for k, v := range b.Metadata {
			fmt.Fprintf(w, "   %s: %s\n", k, v)
		}
		return nil
	}
}

func init() {
	for _, c := range []*cobra.Command{branchCreate, branchGet, branchMetadata} {
		addFormatFlag(c, "text", map[string]Formatter{"text": branchFormatter()})
	}
	addMetadataFlag(branchCreate)
	requireFlags(branchMetadata, addMetadataFlag(branchMetadata))
	addFormatFlag(branchList, "list", map[string]Formatter{"list": branchListFormatter()})

	branchCmd.AddCommand(branchCreate, branchDelete, branchGet, branchMetadata, branchList)
	rootCmd.AddCommand(branchCmd)
}
