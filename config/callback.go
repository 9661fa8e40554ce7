package config

// ConfigCallback distributes a parsed configuration to registered
// listeners. Packages (e.g. logger) register a callback at init time and
// get reconfigured once the configuration is built.
type ConfigCallback[T any] struct {
	callbacks []func(T)
}

func (cc *ConfigCallback[T]) AddCallback(f func(T)) {
	cc.callbacks = append(cc.callbacks, f)
}

func (cc *ConfigCallback[T]) Call(c T) {
	for _, f := range cc.callbacks {
		f(c)
	}
}
