package codegen

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/graph"
	"github.com/roach88/jsgraph/internal/ident"
	"github.com/roach88/jsgraph/internal/runtime"
)

func quote(s string) string { return ident.QuoteJSON(s) }

func sanitizeComment(s string) string {
	return strings.ReplaceAll(s, "*/", "* /")
}

var (
	leadingNonIdent = regexp.MustCompile(`^([^a-zA-Z$_])`)
	nonAlphaNumeric = regexp.MustCompile(`[^a-zA-Z0-9$]+`)
	safeIdentifier  = regexp.MustCompile(`^[_a-zA-Z$][_a-zA-Z$0-9]*$`)
)

// ToIdentifier turns a request into a valid identifier fragment: "./b" gives
// "_b", "lodash/fp" gives "lodash_fp".
func ToIdentifier(s string) string {
	s = leadingNonIdent.ReplaceAllString(s, "_$1")
	return nonAlphaNumeric.ReplaceAllString(s, "_")
}

var reservedIdentifiers = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true, "const": true,
	"continue": true, "debugger": true, "default": true, "delete": true, "do": true,
	"else": true, "export": true, "extends": true, "finally": true, "for": true,
	"function": true, "if": true, "import": true, "in": true, "instanceof": true,
	"new": true, "return": true, "super": true, "switch": true, "this": true,
	"throw": true, "try": true, "typeof": true, "var": true, "void": true,
	"while": true, "with": true, "enum": true, "implements": true, "interface": true,
	"let": true, "package": true, "private": true, "protected": true, "public": true,
	"static": true, "yield": true, "await": true, "null": true, "true": true,
	"false": true,
}

// PropertyAccess renders member access for ids[start:]. Safe, unreserved
// names use dot access; everything else is bracketed with a JSON string.
func PropertyAccess(ids []string, start int) string {
	var b strings.Builder
	for _, id := range ids[min(start, len(ids)):] {
		if safeIdentifier.MatchString(id) && !reservedIdentifiers[id] {
			b.WriteString("." + id)
		} else {
			b.WriteString("[" + quote(id) + "]")
		}
	}
	return b.String()
}

func missingModuleError(request string) string {
	return "var e = new Error(" + quote("Cannot find module '"+request+"'") + "); e.code = 'MODULE_NOT_FOUND'; throw e;"
}

func missingModuleFunction(request string) string {
	return "function webpackMissingModule() { " + missingModuleError(request) + " }"
}

// MissingModule renders an expression that throws MODULE_NOT_FOUND when
// evaluated.
func MissingModule(request string) string {
	return "Object(" + missingModuleFunction(request) + "())"
}

// MissingModuleStatement is MissingModule as a statement.
func MissingModuleStatement(request string) string {
	return MissingModule(request) + ";\n"
}

// MissingModulePromise renders a promise rejecting with MODULE_NOT_FOUND.
func MissingModulePromise(request string) string {
	return "Promise.resolve().then(" + missingModuleFunction(request) + ")"
}

// ModuleRaw renders a require call of target, or a missing module expression
// when the dependency did not resolve.
func (c *TemplateContext) ModuleRaw(target ident.ModuleIdentifier, request string) (string, error) {
	if target == "" {
		return MissingModule(request), nil
	}
	id, err := c.moduleID(target)
	if err != nil {
		return "", err
	}
	return c.requirement(runtime.Require) + "(" + c.comment(request) + id.JSON() + ")", nil
}

// ImportStatement renders the statement loading target into importVar. A
// dynamic target also gets a default-export getter.
func (c *TemplateContext) ImportStatement(dep ident.DependencyID, target ident.ModuleIdentifier, request, importVar string) (string, error) {
	if target == "" {
		return MissingModuleStatement(request), nil
	}
	raw, err := c.ModuleRaw(target, request)
	if err != nil {
		return "", err
	}
	s := "/* ESM import */ var " + importVar + " = " + raw + ";\n"
	if c.Graph.GetExportsType(dep, c.strict()) == graph.ExportsDynamic {
		n := c.requirement(runtime.CompatGetDefaultExport)
		s += "/* ESM import */ var " + importVar + "_default = /*#__PURE__*/" + n + "(" + importVar + ");\n"
	}
	return s, nil
}

// ExportAccess describes a read of an imported binding.
type ExportAccess struct {
	Dependency ident.DependencyID
	Target     ident.ModuleIdentifier // empty when unresolved
	Request    string
	ImportVar  string
	Ids        []string
	Call       bool // the read is called
	// CallContext keeps the receiver of a call (ns.f() stays a method call).
	CallContext bool
	ASI         dependency.ASISafety
}

func asiPrefixed(asi dependency.ASISafety, safe, unsafe, unknown string) string {
	switch asi {
	case dependency.ASISafe:
		return safe
	case dependency.ASIUnsafe:
		return unsafe
	}
	return unknown
}

// ExportFromImport renders a read of an imported binding according to the
// target's exports type.
func (c *TemplateContext) ExportFromImport(a ExportAccess) string {
	if a.Target == "" {
		return MissingModule(a.Request)
	}
	ids := a.Ids
	if c.Concatenation != nil && len(ids) > 0 {
		if local, ok := c.Concatenation.Lookup(a.Target, ids[0]); ok {
			return local + PropertyAccess(ids, 1)
		}
	}

	exportsType := c.Graph.GetExportsType(a.Dependency, c.strict())
	switch {
	case len(ids) > 0 && ids[0] == "default":
		switch exportsType {
		case graph.ExportsDynamic:
			rest := PropertyAccess(ids, 1)
			if a.Call {
				return a.ImportVar + "_default()" + rest
			}
			return asiPrefixed(a.ASI,
				"("+a.ImportVar+"_default()"+rest+")",
				";("+a.ImportVar+"_default()"+rest+")",
				a.ImportVar+"_default.a"+rest)
		case graph.ExportsDefaultOnly, graph.ExportsDefaultWithNamed:
			ids = ids[1:]
		}
	case len(ids) > 0:
		if exportsType == graph.ExportsDefaultOnly {
			return "/* non-default import from non-esm module */undefined" + PropertyAccess(ids, 1)
		}
		if exportsType != graph.ExportsNamespace && ids[0] == "__esModule" {
			return "/* __esModule */true"
		}
	case exportsType == graph.ExportsDefaultOnly || exportsType == graph.ExportsDefaultWithNamed:
		create := c.requirement(runtime.CreateFakeNamespaceObject)
		cache := a.ImportVar + "_namespace_cache"
		c.AddFragment(&Fragment{K: cache, S: StageConstants, Pos: -1, Text: "var " + cache + ";\n"})
		mode := ""
		if exportsType == graph.ExportsDefaultWithNamed {
			mode = ", 2"
		}
		return "/*#__PURE__*/ " + asiPrefixed(a.ASI, "", ";", "Object") +
			"(" + cache + " || (" + cache + " = " + create + "(" + a.ImportVar + mode + ")))"
	}

	if len(ids) == 0 {
		return a.ImportVar
	}
	access := a.ImportVar + PropertyAccess(ids, 0)
	if a.Call && !a.CallContext {
		return asiPrefixed(a.ASI, "(0,"+access+")", ";(0,"+access+")", "/*#__PURE__*/Object("+access+")")
	}
	return access
}

// BlockPromise renders a promise resolving once the chunks of block are
// loaded. Chunks carrying the runtime are already loaded and skipped.
func (c *TemplateContext) BlockPromise(block *dependency.AsyncBlock, message string) string {
	comment := c.comment(message)
	resolved := "Promise.resolve(" + strings.TrimSpace(comment) + ")"
	if block == nil || c.Chunks == nil {
		return resolved
	}
	var ids []ident.OutputID
	for _, ch := range c.Chunks.BlockChunks(block.ID) {
		if !ch.HasRuntime {
			ids = append(ids, ch.ID)
		}
	}
	slices.SortFunc(ids, ident.CompareOutputID)
	switch len(ids) {
	case 0:
		return resolved
	case 1:
		return c.requirement(runtime.EnsureChunk) + "(" + comment + ids[0].JSON() + ")"
	}
	ensure := c.requirement(runtime.EnsureChunk)
	calls := make([]string, len(ids))
	for i, id := range ids {
		calls[i] = ensure + "(" + id.JSON() + ")"
	}
	return "Promise.all(" + strings.TrimSpace(comment) + "[" + strings.Join(calls, ", ") + "])"
}

// ModuleNamespacePromise renders import(): the block promise followed by
// the namespace object of target.
func (c *TemplateContext) ModuleNamespacePromise(block *dependency.AsyncBlock, dep ident.DependencyID, target ident.ModuleIdentifier, request, message string) (string, error) {
	if target == "" {
		return MissingModulePromise(request), nil
	}
	id, err := c.moduleID(target)
	if err != nil {
		return "", err
	}
	promise := c.BlockPromise(block, message)
	idExpr := c.comment(request) + id.JSON()

	exportsType := c.Graph.GetExportsType(dep, c.strict())
	if exportsType == graph.ExportsNamespace {
		req := c.requirement(runtime.Require)
		return promise + ".then(" + req + ".bind(" + req + ", " + idExpr + "))", nil
	}
	fakeType := 16
	switch exportsType {
	case graph.ExportsDynamic:
		fakeType |= 4
		fallthrough
	case graph.ExportsDefaultWithNamed:
		fakeType |= 2
	}
	fakeType |= 1
	create := c.requirement(runtime.CreateFakeNamespaceObject)
	req := c.requirement(runtime.Require)
	return promise + ".then(" + create + ".bind(" + req + ", " + idExpr + ", " + strconv.Itoa(fakeType) + "))", nil
}
