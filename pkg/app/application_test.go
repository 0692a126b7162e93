package app

import (
	stderrors "errors"
	"testing"

	"github.com/oneconcern/revstore/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"
)

var errExpected = stderrors.New("expected")

// recorder tracks the lifecycle calls of modules
type recorder struct {
	calls []string
}

func (r *recorder) module(name string, failOn ...string) Module {
	fails := func(step string) error {
		for _, f := range failOn {
			if f == step {
				return errExpected
			}
		}
		return nil
	}
	return MakeModule(name,
		Init(func(_ Application) error {
			r.calls = append(r.calls, "init "+name)
			return fails("init")
		}),
		Start(func(_ Application) error {
			r.calls = append(r.calls, "start "+name)
			return fails("start")
		}),
		Stop(func(_ Application) error {
			r.calls = append(r.calls, "stop "+name)
			return fails("stop")
		}),
	)
}

func TestApplicationLifecycle(t *testing.T) {
	var r recorder
	app := New(nil, zaptest.NewLogger(t))
	app.Add(r.module("store"), r.module("repo"), r.module("http"))

	require.NoError(t, app.Init())
	require.NoError(t, app.Start())
	require.NoError(t, app.Stop())

	assert.Equal(t, []string{
		"init store", "init repo", "init http",
		"start store", "start repo", "start http",
		"stop http", "stop repo", "stop store",
	}, r.calls)

	// stopping again is a no-op
	r.calls = nil
	require.NoError(t, app.Stop())
	assert.Empty(t, r.calls)
}

func TestApplicationInitError(t *testing.T) {
	var r recorder
	app := New(nil, nil)
	app.Add(r.module("store"), r.module("repo", "init"), r.module("http"))

	assert.ErrorIs(t, app.Init(), errExpected)
	assert.Equal(t, []string{"init store", "init repo"}, r.calls)
}

func TestApplicationStartError(t *testing.T) {
	var r recorder
	app := New(nil, zaptest.NewLogger(t))
	app.Add(r.module("store"), r.module("repo"), r.module("http", "start"))

	require.NoError(t, app.Init())
	r.calls = nil
	assert.ErrorIs(t, app.Start(), errExpected)
	assert.Equal(t, []string{
		"start store", "start repo", "start http",
		"stop repo", "stop store",
	}, r.calls)
}

func TestApplicationStopError(t *testing.T) {
	var r recorder
	app := New(nil, zaptest.NewLogger(t))
	app.Add(r.module("store", "stop"), r.module("repo", "stop"), r.module("http"))

	require.NoError(t, app.Init())
	require.NoError(t, app.Start())
	r.calls = nil

	err := app.Stop()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, []string{"stop http", "stop repo", "stop store"}, r.calls)
}

func TestMakeModule(t *testing.T) {
	var stops int
	mod := MakeModule("many",
		Stop(func(_ Application) error {
			stops++
			return errExpected
		}),
		Stop(func(_ Application) error {
			stops++
			return nil
		}),
	).(*dynamicModule)

	assert.Equal(t, "many", mod.Name())
	assert.Len(t, mod.stop, 2)
	assert.Empty(t, mod.init)
	assert.NoError(t, mod.Init(nil))
	assert.NoError(t, mod.Start(nil))

	// all stop callbacks run
	assert.Error(t, mod.Stop(nil))
	assert.Equal(t, 2, stops)
}

func TestRegistry(t *testing.T) {
	const repoKey Key = 1
	app := New(nil, nil)

	_, err := app.Get(repoKey)
	assert.True(t, errors.Is(err, ErrModuleUnknown))

	app.Set(repoKey, "repo")
	mod, err := app.Get(repoKey)
	require.NoError(t, err)
	assert.Equal(t, "repo", mod)
	assert.NotNil(t, app.Config())
	assert.NotNil(t, app.Logger())
}
