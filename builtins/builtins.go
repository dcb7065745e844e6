// Package builtins installs the standard filter/test/function library into
// a runtime.Extensions registry. It is kept separate from runtime itself so
// a host can build a registry with none, some, or all of these installed.
package builtins

import "github.com/halvard/stencil/runtime"

// Install registers every built-in filter, test and function into ext,
// replacing any existing entry with the same name.
func Install(ext *runtime.Extensions) {
	installFilters(ext)
	installTests(ext)
	installFunctions(ext)
}
