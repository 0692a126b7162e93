package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/oneconcern/revstore/pkg/core"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/spf13/cobra"
)

// errConflicts makes the command fail when a merge is prevented by conflicts
var errConflicts = errors.New("conflicts prevented the merge: nothing was written")

func printMerge(w io.Writer, m model.Merge) {
	op := "merge"
	if m.Rebase {
		op = "rebase"
	}
	if !m.HasConflicts() {
		if m.Commit == nil {
			fmt.Fprintf(w, "%s %s: nothing to apply\n", op, color.GreenString("%s", m.Status))
			return
		}
		fmt.Fprintf(w, "%s %s: commit %s on %s\n", op, color.GreenString("%s", m.Status),
			color.MagentaString("%d", m.Commit.Timestamp), m.Commit.BranchPath)
		return
	}
	fmt.Fprintf(w, "%s %s (base %s)\n", op, color.RedString("%s", m.Status), m.Base)
	for _, c := range m.Conflicts {
		fmt.Fprintf(w, "   %s %s %s\n", color.RedString("%s", c.Kind), c.ComponentType, c.ComponentID)
		for _, a := range c.Attributes {
			fmt.Fprintf(w, "      %s\n", a)
		}
	}
}

func runMerge(cmd *cobra.Command, rebase bool) error {
	return withRepo(cmd, func(repo *core.Repo) error {
		var (
			m   model.Merge
			err error
		)
		source, target := revstoreFlags.merge.Source, revstoreFlags.merge.Target
		if rebase {
			if source == "" {
				source, err = parentOf(repo, target)
				if err != nil {
					return err
				}
			}
			m, err = repo.Rebase(cmd.Context(), target, source, revstoreFlags.merge.Message)
		} else {
			m, err = repo.Merge(cmd.Context(), source, target, revstoreFlags.merge.Message)
		}
		if err != nil {
			return wrapError("merge", err)
		}
		if err = print(cmd, m); err != nil {
			return err
		}
		if m.HasConflicts() {
			return errConflicts
		}
		return nil
	})
}

func parentOf(repo *core.Repo, path string) (string, error) {
	b, err := repo.Branches().Get(path)
	if err != nil {
		return "", wrapError("rebase", err)
	}
	if b.IsRoot() {
		return "", fmt.Errorf("%s has no parent to rebase onto", path)
	}
	parent, err := repo.Branches().GetByID(b.ParentID)
	if err != nil {
		return "", wrapError("rebase", err)
	}
	return parent.Path, nil
}

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge a branch into another one",
	Long: `Merge the changes made on the source branch since the merge base into the target branch.

When both branches changed a component in incompatible ways, the conflicts are listed and nothing is written.
`,
	Example: `% revstore merge -s MAIN/project -t MAIN -m "release project"`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMerge(cmd, false)
	},
}

var rebaseCmd = &cobra.Command{
	Use:   "rebase",
	Short: "Rebase a branch onto another one",
	Long: `Bring the changes of the source branch onto the target branch, usually a child branch catching up
with its parent. The source defaults to the parent of the target.
`,
	Example: `% revstore rebase -t MAIN/project`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMerge(cmd, true)
	},
}

func init() {
	mergeFormatter := map[string]Formatter{
		"text": FormatterFunc(func(w io.Writer, data interface{}) error {
			printMerge(w, data.(model.Merge))
			return nil
		}),
	}

	requireFlags(mergeCmd,
		addSourceFlag(mergeCmd, &revstoreFlags.merge.Source),
		addTargetFlag(mergeCmd, &revstoreFlags.merge.Target),
	)
	addMessageFlag(mergeCmd, &revstoreFlags.merge.Message)
	addFormatFlag(mergeCmd, "text", mergeFormatter)

	addSourceFlag(rebaseCmd, &revstoreFlags.merge.Source)
	requireFlags(rebaseCmd, addTargetFlag(rebaseCmd, &revstoreFlags.merge.Target))
	addMessageFlag(rebaseCmd, &revstoreFlags.merge.Message)
	addFormatFlag(rebaseCmd, "text", mergeFormatter)

	rootCmd.AddCommand(mergeCmd, rebaseCmd)
}
