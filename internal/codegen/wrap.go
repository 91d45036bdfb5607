package codegen

import (
	"strings"

	"github.com/roach88/jsgraph/internal/ident"
	"github.com/roach88/jsgraph/internal/runtime"
)

// FactoryArguments lists the parameters of the module's factory function.
// Trailing parameters the module never uses are left out; unused ones in
// front of a used one get an __unused_webpack_ prefix.
func (r *Result) FactoryArguments() []string {
	needModule := r.RuntimeRequirements.Has(runtime.Module)
	needExports := r.RuntimeRequirements.Has(runtime.Exports)
	needRequire := r.RuntimeRequirements.HasAny(runtime.Require | runtime.RequireScope)

	var args []string
	if !needModule && !needExports && !needRequire {
		return args
	}
	args = append(args, unusedUnless(needModule, r.ModuleArgument))
	if needExports || needRequire {
		args = append(args, unusedUnless(needExports, r.ExportsArgument))
	}
	if needRequire {
		args = append(args, runtime.Require.Name())
	}
	return args
}

func unusedUnless(used bool, name string) string {
	if used {
		return name
	}
	return "__unused_webpack_" + name
}

// Factory renders the module as an entry of the modules object:
//
//	/***/ "./src/a.js":
//	/***/ ((module, exports, __webpack_require__) => {
//	...
//	/***/ })
func (r *Result) Factory(id ident.OutputID, opts Options) string {
	args := strings.Join(r.FactoryArguments(), ", ")
	var b strings.Builder
	b.WriteString("/***/ " + id.JSON() + ":\n")
	if opts.ArrowFunctions {
		b.WriteString("/***/ ((" + args + ") => {\n\n")
	} else {
		b.WriteString("/***/ (function(" + args + ") {\n\n")
	}
	if r.Strict {
		b.WriteString("\"use strict\";\n")
	}
	b.WriteString(r.Source)
	b.WriteString("\n\n/***/ })")
	return b.String()
}
