package cmd

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/oneconcern/revstore"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/spf13/afero"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const changesFile = "/changes.yaml"

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// setup points the commands to a fresh badger database
func setup(t *testing.T) {
	t.Setenv("REVSTORE_STORAGE_BACKEND", revstore.BackendBadger)
	t.Setenv("REVSTORE_STORAGE_DIR", t.TempDir())
	t.Setenv("REVSTORE_LOGGING_LEVEL", "none")
	fs := appFs
	appFs = afero.NewMemMapFs()
	t.Cleanup(func() { appFs = fs })
}

func run(t *testing.T, args ...string) (string, error) {
	resetFlags(rootCmd)
	var stdout bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&bytes.Buffer{})
	err := rootCmd.Execute()
	return stdout.String(), err
}

func mustRun(t *testing.T, out interface{}, args ...string) string {
	stdout, err := run(t, args...)
	require.NoError(t, err, stdout)
	if out != nil {
		require.NoError(t, json.Unmarshal([]byte(stdout), out))
	}
	return stdout
}

func writeChanges(t *testing.T, changes string) {
	require.NoError(t, afero.WriteFile(appFs, changesFile, []byte(changes), 0600))
}

func TestBranchCommands(t *testing.T) {
	setup(t)

	var b model.Branch
	mustRun(t, &b, "branch", "create", "MAIN/a", "--metadata", "owner=jdoe", "-o", "json")
	assert.Equal(t, "MAIN/a", b.Path)
	assert.Equal(t, "jdoe", b.Metadata["owner"])

	mustRun(t, nil, "branch", "create", "MAIN/a/b")
	_, err := run(t, "branch", "create", "MAIN/a")
	assert.Error(t, err)
	_, err = run(t, "branch", "create", "MAIN")
	assert.Error(t, err)

	listing := mustRun(t, nil, "branch", "list")
	assert.Contains(t, listing, "MAIN/a/b")
	assert.Contains(t, listing, "PATH")

	mustRun(t, nil, "branch", "delete", "MAIN/a")
	mustRun(t, &b, "branch", "get", "MAIN/a/b", "-o", "json")
	assert.True(t, b.Deleted)

	var all model.Branches
	mustRun(t, &all, "branch", "list", "-o", "json")
	assert.Len(t, all, 3)
}

func TestCommitCommands(t *testing.T) {
	setup(t)
	writeChanges(t, `
- op: create
  id: c1
  type: concept
  attributes:
    definitionStatus: primitive
`)
	var c model.Commit
	mustRun(t, &c, "commit", "-f", changesFile, "--author", "jdoe", "-m", "first", "-o", "json")
	assert.Equal(t, []string{"c1"}, c.NewComponentIDs)
	assert.Equal(t, "MAIN", c.BranchPath)

	writeChanges(t, `
- op: update
  id: c1
  attributes:
    definitionStatus: defined
`)
	mustRun(t, nil, "commit", "-b", "MAIN", "-f", changesFile)

	var commits model.Commits
	mustRun(t, &commits, "log", "-o", "json")
	require.Len(t, commits, 2)
	assert.Equal(t, "first", commits[0].Comment)

	var rev model.Revision
	mustRun(t, &rev, "component", "c1", "-o", "json")
	assert.Equal(t, "defined", rev.Attributes["definitionStatus"])
	mustRun(t, &rev, "component", "c1", "--timestamp", cast.ToString(commits[0].Timestamp), "-o", "json")
	assert.Equal(t, "primitive", rev.Attributes["definitionStatus"])

	writeChanges(t, `- op: rename`)
	_, err := run(t, "commit", "-f", changesFile)
	assert.Error(t, err)
	_, err = run(t, "commit", "-f", "/missing.yaml")
	assert.Error(t, err)
}

func TestMergeCommands(t *testing.T) {
	setup(t)
	writeChanges(t, `
- op: create
  id: c1
  type: concept
  attributes:
    definitionStatus: primitive
`)
	mustRun(t, nil, "commit", "-f", changesFile)
	mustRun(t, nil, "branch", "create", "MAIN/a")
	mustRun(t, nil, "branch", "create", "MAIN/b")

	writeChanges(t, `
- op: update
  id: c1
  attributes:
    definitionStatus: defined
`)
	mustRun(t, nil, "commit", "-b", "MAIN/a", "-f", changesFile)
	outcome := mustRun(t, nil, "merge", "-s", "MAIN/a", "-t", "MAIN", "-m", "release a")
	assert.Contains(t, outcome, string(model.MergeCompleted))

	// the sibling catches up with its parent
	var m model.Merge
	mustRun(t, &m, "rebase", "-t", "MAIN/b", "-o", "json")
	assert.True(t, m.Rebase)
	assert.Equal(t, model.MergeCompleted, m.Status)

	writeChanges(t, `
- op: update
  id: c1
  attributes:
    definitionStatus: other
`)
	mustRun(t, nil, "commit", "-b", "MAIN/b", "-f", changesFile)
	writeChanges(t, `
- op: update
  id: c1
  attributes:
    definitionStatus: primitive
`)
	mustRun(t, nil, "commit", "-b", "MAIN", "-f", changesFile)

	outcome, err := run(t, "merge", "-s", "MAIN/b", "-t", "MAIN")
	require.ErrorIs(t, err, errConflicts)
	assert.Contains(t, outcome, string(model.ConflictingChange))
	assert.Contains(t, outcome, "c1")
}

func TestReviewCommands(t *testing.T) {
	setup(t)
	mustRun(t, nil, "branch", "create", "MAIN/a")
	writeChanges(t, `
- op: create
  id: c1
  type: concept
  attributes:
    definitionStatus: primitive
`)
	mustRun(t, nil, "commit", "-b", "MAIN/a", "-f", changesFile)

	var rv model.Review
	mustRun(t, &rv, "review", "create", "-s", "MAIN/a", "-t", "MAIN", "-o", "json")
	assert.Equal(t, model.ReviewCurrent, rv.Status)

	var concepts model.ConceptChanges
	mustRun(t, &concepts, "review", "concepts", rv.ID, "-o", "json")
	assert.Equal(t, []string{"c1"}, concepts.NewConcepts)

	var changes model.ReviewChanges
	mustRun(t, &changes, "review", "changes", rv.ID, "-o", "json")
	assert.Equal(t, []string{"c1"}, changes.NewComponents)

	listing := mustRun(t, nil, "review", "list")
	assert.Contains(t, listing, rv.ID)
	assert.Contains(t, listing, "STATUS")
	assert.Contains(t, listing, "ago")

	mustRun(t, nil, "review", "delete", rv.ID)
	_, err := run(t, "review", "get", rv.ID)
	assert.Error(t, err)

	_, err = run(t, "review", "create", "-s", "MAIN", "-t", "MAIN")
	assert.Error(t, err)
}

func TestConfigCommand(t *testing.T) {
	setup(t)
	t.Setenv("REVSTORE_REVIEWS_WORKERS", "3")

	var cfg revstore.Config
	mustRun(t, &cfg, "config", "-o", "json")
	assert.Equal(t, 3, cfg.Reviews.Workers)
	assert.Equal(t, revstore.BackendBadger, cfg.Storage.Backend)
	assert.NotEmpty(t, cfg.Storage.Dir)

	t.Setenv("REVSTORE_STORAGE_BACKEND", "s3")
	_, err := run(t, "config")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "s3"))
}

func TestServeModules(t *testing.T) {
	setup(t)
	t.Setenv("REVSTORE_STORAGE_BACKEND", revstore.BackendMemory)
	t.Setenv("REVSTORE_HTTP_LISTEN", "127.0.0.1:0")
	initConfig()

	a, err := newServer(serveCmd)
	require.NoError(t, err)
	require.NoError(t, a.Init())
	require.NoError(t, a.Start())
	stopped := false
	defer func() {
		if !stopped {
			_ = a.Stop()
		}
	}()

	mod, err := a.Get(listenerKey)
	require.NoError(t, err)
	addr := mod.(string)

	for _, path := range []string{"/branches", "/metrics"} {
		resp, err := http.Get("http://" + addr + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	stopped = true
	require.NoError(t, a.Stop())
}
