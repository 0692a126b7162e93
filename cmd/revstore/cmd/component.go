package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/oneconcern/revstore/pkg/core"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/spf13/cobra"
)

var componentCmd = &cobra.Command{
	Use:     "component <id>",
	Short:   "Get a component",
	Long:    `Get the revision of a component visible on a branch, at the head or as of some timestamp.`,
	Example: `% revstore component 22298006 -b MAIN/project --timestamp 42`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd, func(repo *core.Repo) error {
			rev, err := repo.Component(args[0], revstoreFlags.component.Branch, revstoreFlags.component.Timestamp)
			if err != nil {
				return wrapError("get component", err)
			}
			return print(cmd, rev)
		})
	},
}

func init() {
	addBranchFlag(componentCmd, &revstoreFlags.component.Branch, "The branch to read the component from")
	addTimestampFlag(componentCmd)
	addFormatFlag(componentCmd, "text", map[string]Formatter{
		"text": FormatterFunc(func(w io.Writer, data interface{}) error {
			rev := data.(model.Revision)
			fmt.Fprintf(w, "%s %s\n", rev.ComponentType, color.MagentaString(rev.ComponentID))
			names := make([]string, 0, len(rev.Attributes))
			for name := range rev.Attributes {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(w, "   %s: %s\n", name, rev.Attributes[name])
			}
			return nil
		}),
	})
	rootCmd.AddCommand(componentCmd)
}
