// Copyright © 2018 One Concern

package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type flagsT struct {
	branch struct {
		Metadata map[string]string
	}
	commit struct {
		Branch  string
		Author  string
		Message string
		File    string
	}
	history struct {
		Since int64
	}
	component struct {
		Branch    string
		Timestamp int64
	}
	merge struct {
		Source  string
		Target  string
		Message string
	}
	review struct {
		Source  string
		Target  string
		Wait    bool
		Timeout time.Duration
	}
}

var revstoreFlags = flagsT{}

// addRootFlags adds the persistent flags overriding the configuration
func addRootFlags(cmd *cobra.Command) {
	fls := cmd.PersistentFlags()
	fls.String("storage", "", "The storage backend: badger or memory")
	fls.String("dir", "", "The directory of the badger database")
	fls.String("log-level", "", "The log level: debug, info, warn, error or none")
	_ = viper.BindPFlag("storage.backend", fls.Lookup("storage"))
	_ = viper.BindPFlag("storage.dir", fls.Lookup("dir"))
	fls.String("log-encoding", "", "The encoding of log entries: json or console")
	_ = viper.BindPFlag("logging.level", fls.Lookup("log-level"))
	_ = viper.BindPFlag("logging.encoding", fls.Lookup("log-encoding"))
}

func addBranchFlag(cmd *cobra.Command, target *string, usage string) string {
	branch := "branch"
	cmd.Flags().StringVarP(target, branch, "b", "MAIN", usage)
	return branch
}

func addMetadataFlag(cmd *cobra.Command) string {
	metadata := "metadata"
	cmd.Flags().StringToStringVar(&revstoreFlags.branch.Metadata, metadata, nil, "Metadata of the branch, as key=value pairs")
	return metadata
}

func addAuthorFlag(cmd *cobra.Command) string {
	author := "author"
	cmd.Flags().StringVar(&revstoreFlags.commit.Author, author, "", "The author of the commit")
	return author
}

func addMessageFlag(cmd *cobra.Command, target *string) string {
	message := "message"
	cmd.Flags().StringVarP(target, message, "m", "", "The message describing the commit")
	return message
}

func addChangesFileFlag(cmd *cobra.Command) string {
	file := "file"
	cmd.Flags().StringVarP(&revstoreFlags.commit.File, file, "f", "", "A YAML file holding the list of changes")
	return file
}

func addSinceFlag(cmd *cobra.Command) string {
	since := "since"
	cmd.Flags().Int64Var(&revstoreFlags.history.Since, since, -1, "Only list the commits stamped after this timestamp")
	return since
}

func addTimestampFlag(cmd *cobra.Command) string {
	timestamp := "timestamp"
	cmd.Flags().Int64Var(&revstoreFlags.component.Timestamp, timestamp, -1, "Read the component as of this timestamp (defaults to the head)")
	return timestamp
}

func addSourceFlag(cmd *cobra.Command, target *string) string {
	source := "source"
	cmd.Flags().StringVarP(target, source, "s", "", "The path of the source branch")
	return source
}

func addTargetFlag(cmd *cobra.Command, target *string) string {
	t := "target"
	cmd.Flags().StringVarP(target, t, "t", "", "The path of the target branch")
	return t
}

func addWaitFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&revstoreFlags.review.Wait, "wait", true, "Wait for the review to be computed")
	cmd.Flags().DurationVar(&revstoreFlags.review.Timeout, "timeout", time.Minute, "The maximum time to wait for the review")
}

func requireFlags(cmd *cobra.Command, flags ...string) {
	for _, flag := range flags {
		_ = cmd.MarkFlagRequired(flag)
	}
}
