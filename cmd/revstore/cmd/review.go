package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/oneconcern/revstore/pkg/core"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/spf13/cobra"
)

// reviewCmd represents the review related commands
var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Commands to review the changes of a branch",
	Long: `Commands to review the changes brought by a source branch since its merge base with a target branch.

Reviews are computed in the background. A review becomes STALE as soon as one of its branches moves.
`,
}

func reviewStatus(s model.ReviewStatus) string {
	switch s {
	case model.ReviewCurrent:
		return color.GreenString("%s", s)
	case model.ReviewPending:
		return color.YellowString("%s", s)
	default:
		return color.RedString("%s", s)
	}
}

func printReview(w io.Writer, rv model.Review) {
	fmt.Fprintf(w, "%s %s -> %s %s\n", color.MagentaString("%s", rv.ID), rv.SourcePath, rv.TargetPath, reviewStatus(rv.Status))
	if rv.Error != "" {
		fmt.Fprintln(w, "   ", rv.Error)
	}
}

func printIDs(w io.Writer, mark string, paint func(string, ...interface{}) string, ids []string) {
	for _, id := range ids {
		fmt.Fprintln(w, paint("   %s %s", mark, id))
	}
}

func printChanges(w io.Writer, changes model.ReviewChanges) {
	printIDs(w, "+", color.GreenString, changes.NewComponents)
	for _, delta := range changes.ChangedComponents {
		fmt.Fprintln(w, color.YellowString("   ~ %s", delta.ID), delta.Type)
		for _, a := range delta.Attributes {
			fmt.Fprintf(w, "       %s\n", a)
		}
	}
	printIDs(w, "-", color.RedString, changes.DeletedComponents)
}

func printConcepts(w io.Writer, changes model.ConceptChanges) {
	printIDs(w, "+", color.GreenString, changes.NewConcepts)
	printIDs(w, "~", color.YellowString, changes.ChangedConcepts)
	printIDs(w, "-", color.RedString, changes.DeletedConcepts)
}

var reviewCreate = &cobra.Command{
	Use:     "create",
	Short:   "Create a review",
	Example: `% revstore review create -s MAIN/project -t MAIN`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd, func(repo *core.Repo) error {
			rv, err := repo.Reviews().Create(cmd.Context(), revstoreFlags.review.Source, revstoreFlags.review.Target)
			if err != nil {
				return wrapError("create review", err)
			}
			if revstoreFlags.review.Wait {
				ctx, cancel := context.WithTimeout(cmd.Context(), revstoreFlags.review.Timeout)
				defer cancel()
				if rv, err = repo.Reviews().Await(ctx, rv.ID); err != nil {
					return wrapError("wait for review", err)
				}
			}
			return print(cmd, rv)
		})
	},
}

var reviewGet = &cobra.Command{
	Use:   "get <id>",
	Short: "Get the status of a review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd, func(repo *core.Repo) error {
			rv, err := repo.Reviews().Get(args[0])
			if err != nil {
				return wrapError("get review", err)
			}
			return print(cmd, rv)
		})
	},
}

var reviewList = &cobra.Command{
	Use:   "list",
	Short: "List the reviews",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd, func(repo *core.Repo) error {
			reviews, err := repo.Reviews().List()
			if err != nil {
				return wrapError("list reviews", err)
			}
			if reviews == nil {
				reviews = model.Reviews{}
			}
			return print(cmd, reviews)
		})
	},
}

var reviewChanges = &cobra.Command{
	Use:   "changes <id>",
	Short: "List the component changes of a review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd, func(repo *core.Repo) error {
			changes, err := repo.Reviews().Changes(args[0])
			if err != nil {
				return wrapError("get review changes", err)
			}
			return print(cmd, changes)
		})
	},
}

var reviewConcepts = &cobra.Command{
	Use:   "concepts <id>",
	Short: "List the concepts changed by a review",
	Long:  `List the concepts changed by a review: a concept changes when any of its descriptions, relationships or members change.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd, func(repo *core.Repo) error {
			changes, err := repo.Reviews().ConceptChanges(args[0])
			if err != nil {
				return wrapError("get concept changes", err)
			}
			return print(cmd, changes)
		})
	},
}

var reviewDelete = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd, func(repo *core.Repo) error {
			if err := repo.Reviews().Delete(args[0]); err != nil {
				return wrapError("delete review", err)
			}
			out(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		})
	},
}

func init() {
	reviewFormatter := map[string]Formatter{
		"text": FormatterFunc(func(w io.Writer, data interface{}) error {
			printReview(w, data.(model.Review))
			return nil
		}),
	}
	requireFlags(reviewCreate,
		addSourceFlag(reviewCreate, &revstoreFlags.review.Source),
		addTargetFlag(reviewCreate, &revstoreFlags.review.Target),
	)
	addWaitFlags(reviewCreate)
	addFormatFlag(reviewCreate, "text", reviewFormatter)
	addFormatFlag(reviewGet, "text", reviewFormatter)
	addFormatFlag(reviewList, "text", map[string]Formatter{
		"text": FormatterFunc(func(w io.Writer, data interface{}) error {
			table := newTable("ID", "SOURCE", "TARGET", "STATUS", "UPDATED")
			for _, rv := range data.(model.Reviews) {
				table.AddRow(color.MagentaString("%s", rv.ID), rv.SourcePath, rv.TargetPath, reviewStatus(rv.Status), age(rv.UpdatedAt))
			}
			return writeTable(w, table)
		}),
	})
	addFormatFlag(reviewChanges, "text", map[string]Formatter{
		"text": FormatterFunc(func(w io.Writer, data interface{}) error {
			printChanges(w, data.(model.ReviewChanges))
			return nil
		}),
	})
	addFormatFlag(reviewConcepts, "text", map[string]Formatter{
		"text": FormatterFunc(func(w io.Writer, data interface{}) error {
			printConcepts(w, data.(model.ConceptChanges))
			return nil
		}),
	})

	reviewCmd.AddCommand(reviewCreate, reviewGet, reviewList, reviewChanges, reviewConcepts, reviewDelete)
	rootCmd.AddCommand(reviewCmd)
}
