package registry

import (
	"github.com/arkforge/arkforge/pkg/engine"
	"github.com/arkforge/arkforge/pkg/types"
)

// RegisterBuiltinFactories wires the constructors for the engines
// shipped with ArkForge. Discovery still decides, per manifest, which
// of them are actually registered.
func (r *Registry) RegisterBuiltinFactories() {
	r.RegisterFactory("pyinstaller", func(types.PluginDescriptor) (engine.Engine, error) {
		return engine.NewPyInstallerEngine(), nil
	})
	r.RegisterFactory("nuitka", func(types.PluginDescriptor) (engine.Engine, error) {
		return engine.NewNuitkaEngine(), nil
	})
	r.RegisterFactory("cx_freeze", func(types.PluginDescriptor) (engine.Engine, error) {
		return engine.NewCxFreezeEngine(), nil
	})
}

// RegisterBuiltins registers the shipped engines directly, bypassing
// directory discovery. Used when no plugin root is configured.
func (r *Registry) RegisterBuiltins() error {
	for _, eng := range []engine.Engine{
		engine.NewPyInstallerEngine(),
		engine.NewNuitkaEngine(),
		engine.NewCxFreezeEngine(),
	} {
		if err := r.Register(eng); err != nil {
			return err
		}
	}
	return nil
}
