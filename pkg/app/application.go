// Package app is a lifecycle container for the modules of a server: store, repo, sweeper, http listener.
package app

import (
	"sync"

	"github.com/oneconcern/revstore/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrModuleUnknown is returned when no module was registered for a key
var ErrModuleUnknown = errors.New("unknown module")

// A Key represents a key for a module.
// Users of this package define their own keys, this is just the type definition.
type Key int

// Application is an application level context.
// It is used as a kind of dependency injection container.
type Application interface {
	// Add modules to the application context
	Add(...Module)

	// Get the module at the specified key, thread-safe
	Get(Key) (interface{}, error)

	// Set the module at the specified key, thread-safe
	Set(Key, interface{})

	// Config of the application
	Config() *viper.Viper

	// Logger of the application
	Logger() *zap.Logger

	// Init the application and its modules, in the order they were added
	Init() error

	// Start the application and its modules, in the order they were added
	Start() error

	// Stop the started modules, in reverse order
	Stop() error
}

// LifecycleCallback function definition
type LifecycleCallback interface {
	Call(Application) error
}

// Init is an initializer for an initialization function
type Init func(Application) error

// Call implements the callback interface
func (fn Init) Call(app Application) error {
	return fn(app)
}

// Start is an initializer for a start function
type Start func(Application) error

// Call implements the callback interface
func (fn Start) Call(app Application) error {
	return fn(app)
}

// Stop is an initializer for a stop function
type Stop func(Application) error

// Call implements the callback interface
func (fn Stop) Call(app Application) error {
	return fn(app)
}

// A Module is a component that has a specific lifecycle
type Module interface {
	Name() string
	Init(Application) error
	Start(Application) error
	Stop(Application) error
}

// MakeModule by passing the callback functions.
// You can pass multiple callback functions of the same type if you want.
func MakeModule(name string, callbacks ...LifecycleCallback) Module {
	m := &dynamicModule{name: name}
	for _, callback := range callbacks {
		switch cb := callback.(type) {
		case Init:
			m.init = append(m.init, cb)
		case Start:
			m.start = append(m.start, cb)
		case Stop:
			m.stop = append(m.stop, cb)
		}
	}
	return m
}

type dynamicModule struct {
	name  string
	init  []Init
	start []Start
	stop  []Stop
}

func (d *dynamicModule) Name() string {
	return d.name
}

func (d *dynamicModule) Init(app Application) error {
	for _, cb := range d.init {
		if err := cb.Call(app); err != nil {
			return err
		}
	}
	return nil
}

func (d *dynamicModule) Start(app Application) error {
	for _, cb := range d.start {
		if err := cb.Call(app); err != nil {
			return err
		}
	}
	return nil
}

// Stop runs all the stop callbacks, even when some fail
func (d *dynamicModule) Stop(app Application) error {
	var err error
	for _, cb := range d.stop {
		err = multierr.Append(err, cb.Call(app))
	}
	return err
}

// New creates an application context
func New(config *viper.Viper, l *zap.Logger) Application {
	if config == nil {
		config = viper.New()
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &defaultApplication{conf: config, l: l}
}

type defaultApplication struct {
	modules []Module
	started []Module
	mu      sync.Mutex

	registry sync.Map
	conf     *viper.Viper
	l        *zap.Logger
}

func (d *defaultApplication) Add(modules ...Module) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modules = append(d.modules, modules...)
}

// Get the module at the specified key, ErrModuleUnknown when the component doesn't exist
func (d *defaultApplication) Get(key Key) (interface{}, error) {
	mod, ok := d.registry.Load(key)
	if !ok {
		return nil, ErrModuleUnknown.WrapMessage("key %d", key)
	}
	return mod, nil
}

func (d *defaultApplication) Set(key Key, module interface{}) {
	d.registry.Store(key, module)
}

func (d *defaultApplication) Config() *viper.Viper {
	return d.conf
}

func (d *defaultApplication) Logger() *zap.Logger {
	return d.l
}

func (d *defaultApplication) Init() error {
	d.mu.Lock()
	modules := d.modules
	d.mu.Unlock()
	for _, mod := range modules {
		if err := mod.Init(d); err != nil {
			d.l.Error("module init failed", zap.String("module", mod.Name()), zap.Error(err))
			return err
		}
		d.l.Debug("module initialized", zap.String("module", mod.Name()))
	}
	return nil
}

// Start the modules. When a module fails to start, the modules already started are stopped.
func (d *defaultApplication) Start() error {
	d.mu.Lock()
	modules := d.modules
	d.mu.Unlock()
	for _, mod := range modules {
		if err := mod.Start(d); err != nil {
			d.l.Error("module start failed", zap.String("module", mod.Name()), zap.Error(err))
			return multierr.Append(err, d.Stop())
		}
		d.mu.Lock()
		d.started = append(d.started, mod)
		d.mu.Unlock()
		d.l.Debug("module started", zap.String("module", mod.Name()))
	}
	return nil
}

func (d *defaultApplication) Stop() error {
	d.mu.Lock()
	started := d.started
	d.started = nil
	d.mu.Unlock()

	var err error
	for i := len(started) - 1; i >= 0; i-- {
		mod := started[i]
		if e := mod.Stop(d); e != nil {
			d.l.Warn("module stop failed", zap.String("module", mod.Name()), zap.Error(e))
			err = multierr.Append(err, e)
			continue
		}
		d.l.Debug("module stopped", zap.String("module", mod.Name()))
	}
	return err
}
