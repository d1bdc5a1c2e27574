package engine

// Plugin is a loadable collaborator (spec.md §4.3, §6 "Module contract").
// Initialize must be idempotent: the engine calls it again on a
// SIGHUP-equivalent reload without requiring the plugin to tear down and
// rebuild its handlers each time.
type Plugin interface {
	Name() string
	Initialize(e *Engine) error
}

// Unloader is the optional half of the Plugin contract. Unload(true)
// means "shut down now"; returning false vetoes shutdown of that plugin,
// so the engine logs it and moves on to the next plugin rather than
// aborting the whole process.
type Unloader interface {
	Unload(now bool) bool
}
