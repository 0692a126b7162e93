package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/oneconcern/revstore/pkg/core"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// readChanges reads a YAML list of changes
func readChanges(path string) ([]model.Change, error) {
	data, err := afero.ReadFile(appFs, path)
	if err != nil {
		return nil, err
	}
	var changes []model.Change
	if err := yaml.UnmarshalStrict(data, &changes); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return changes, nil
}

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit a change set on a branch",
	Long: `Commit a change set on a branch.

Changes are read from a YAML file listing the components to create, update or delete:

  - op: create
    id: "22298006"
    type: concept
    attributes:
      definitionStatusId: "900000000000074008"
  - op: update
    id: "1234"
    attributes:
      term: Heart attack
  - op: delete
    id: "5678"

Updated attributes with an empty value are removed from the component.
`,
	Example: `% revstore commit -b MAIN/project -f changes.yaml --author jdoe -m "add myocardial infarction"`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		changes, err := readChanges(revstoreFlags.commit.File)
		if err != nil {
			return wrapError("read changes", err)
		}
		return withRepo(cmd, func(repo *core.Repo) error {
			c, err := repo.Commit(cmd.Context(), revstoreFlags.commit.Branch,
				revstoreFlags.commit.Author, revstoreFlags.commit.Message, changes)
			if err != nil {
				return wrapError("commit", err)
			}
			return print(cmd, c)
		})
	},
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Get the commit history of a branch",
	Long:  `Displays the list of commits on a branch, with the components they changed.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd, func(repo *core.Repo) error {
			commits, err := repo.History(revstoreFlags.commit.Branch, revstoreFlags.history.Since)
			if err != nil {
				return wrapError("log", err)
			}
			if commits == nil {
				commits = model.Commits{}
			}
			return print(cmd, commits)
		})
	},
}

func printCommit(w io.Writer, c model.Commit) {
	fmt.Fprint(w, "Timestamp: ")
	fmt.Fprintln(w, color.MagentaString("%d", c.Timestamp))
	if c.Author != "" {
		fmt.Fprint(w, "   Author: ")
		fmt.Fprintln(w, color.YellowString("%s", c.Author))
	}
	fmt.Fprint(w, "     Date: ")
	fmt.Fprintln(w, color.YellowString("%s", c.CreatedAt.Format(time.RFC3339)))
	if c.MergeSource != nil {
		fmt.Fprintf(w, "    Merge: %s\n", c.MergeSource)
	}
	for _, id := range c.NewComponentIDs {
		fmt.Fprintln(w, color.GreenString("   + %s", id))
	}
	for _, id := range c.ChangedComponentIDs {
		fmt.Fprintln(w, color.YellowString("   ~ %s", id))
	}
	for _, id := range c.DeletedComponentIDs {
		fmt.Fprintln(w, color.RedString("   - %s", id))
	}
	if c.Comment != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "   ", c.Comment)
	}
	fmt.Fprintln(w)
}

func init() {
	addBranchFlag(commitCmd, &revstoreFlags.commit.Branch, "The branch to commit on")
	addAuthorFlag(commitCmd)
	addMessageFlag(commitCmd, &revstoreFlags.commit.Message)
	requireFlags(commitCmd, addChangesFileFlag(commitCmd))
	addFormatFlag(commitCmd, "text", map[string]Formatter{
		"text": FormatterFunc(func(w io.Writer, data interface{}) error {
			printCommit(w, data.(model.Commit))
			return nil
		}),
	})

	addBranchFlag(logCmd, &revstoreFlags.commit.Branch, "The branch to list the commits of")
	addSinceFlag(logCmd)
	addFormatFlag(logCmd, "text", map[string]Formatter{
		"text": FormatterFunc(func(w io.Writer, data interface{}) error {
			for _, c := range data.(model.Commits) {
				printCommit(w, c)
			}
			return nil
		}),
	})

	rootCmd.AddCommand(commitCmd, logCmd)
}
