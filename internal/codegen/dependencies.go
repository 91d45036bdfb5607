package codegen

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/graph"
	"github.com/roach88/jsgraph/internal/ident"
	"github.com/roach88/jsgraph/internal/runtime"
)

// Templated is implemented by dependency kinds defined outside this module
// that render themselves.
type Templated interface {
	RenderTemplate(ctx *TemplateContext) error
}

func (c *TemplateContext) target(dep ident.DependencyID) ident.ModuleIdentifier {
	id, _ := c.Graph.ModuleIdentifierByDependencyID(dep)
	return id
}

// renderDependency applies the template of one dependency.
func renderDependency(c *TemplateContext, v graph.Visit) error {
	switch d := v.Dependency.(type) {
	case *dependency.ESMImportSideEffect:
		return renderImportSideEffect(c, d)
	case *dependency.ESMImportSpecifier:
		return renderImportSpecifier(c, d)
	case *dependency.ESMExportSpecifier:
		c.requirement(runtime.Exports | runtime.DefinePropertyGetters)
		c.AddFragment(NewExportFragment(c.exportsArgument(), d.Name, d.Local))
		return nil
	case *dependency.ESMExportExpression:
		return renderExportExpression(c, d)
	case *dependency.ESMExportImportedSpecifier:
		return renderExportImported(c, d)
	case *dependency.ESMCompatibility:
		r := c.requirement(runtime.MakeNamespaceObject)
		c.requirement(runtime.Exports)
		c.AddFragment(&Fragment{K: "esm compatibility", S: StageESMExports, Pos: -10, Text: r + "(" + c.exportsArgument() + ");\n"})
		return nil
	case *dependency.CommonJSRequire:
		return replaceWith(c, d, func() (string, error) {
			return c.ModuleRaw(c.target(d.ID()), d.UserRequest())
		})
	case *dependency.CommonJSExports:
		return renderCommonJSExports(c, d)
	case *dependency.ImportDynamic:
		return replaceWith(c, d, func() (string, error) {
			return c.ModuleNamespacePromise(v.Block, d.ID(), c.target(d.ID()), d.UserRequest(), "import()")
		})
	case *dependency.AMDRequireArray:
		return renderAMDArray(c, d)
	case *dependency.AMDRequire:
		return renderAMDRequire(c, d, v.Block)
	case *dependency.RequireContext:
		return replaceWith(c, d, func() (string, error) {
			return c.ModuleRaw(c.target(d.ID()), d.Options().Request)
		})
	case *dependency.Worker:
		return renderWorker(c, d, v.Block)
	case *dependency.Const:
		c.RuntimeRequirements |= d.Requirements
		return replaceWith(c, d, func() (string, error) { return d.Expression, nil })
	case *dependency.AMDRequireItem, *dependency.ContextElement, *dependency.ConsumeShared:
		// Rendered by their owner, or not rendered at all.
		return nil
	case Templated:
		return d.RenderTemplate(c)
	}
	return nil
}

func replaceWith(c *TemplateContext, d dependency.Dependency, render func() (string, error)) error {
	rng, ok := d.Range()
	if !ok {
		return nil
	}
	s, err := render()
	if err != nil {
		return fmt.Errorf("render %s %s: %w", d.Type(), d.ID().Short(), err)
	}
	c.Source.Replace(rng.Start, rng.End, s)
	return nil
}

// addImport queues the import statement of target. Every dependency that
// reads from the same target shares one statement.
func addImport(c *TemplateContext, dep ident.DependencyID, target ident.ModuleIdentifier, request, userRequest string, sourceOrder int) error {
	if target == "" {
		c.AddFragment(&Fragment{
			K:    "esm import missing " + request,
			S:    StageESMImports,
			Pos:  sourceOrder,
			Text: MissingModuleStatement(request),
		})
		return nil
	}
	v := c.importVar(target, userRequest)
	stmt, err := c.ImportStatement(dep, target, userRequest, v)
	if err != nil {
		return err
	}
	c.AddFragment(&Fragment{K: "esm import " + v, S: StageESMImports, Pos: sourceOrder, Text: stmt})
	return nil
}

func renderImportSideEffect(c *TemplateContext, d *dependency.ESMImportSideEffect) error {
	if rng, ok := d.Range(); ok {
		c.Source.Replace(rng.Start, rng.End, "")
	}
	return addImport(c, d.ID(), c.target(d.ID()), d.Request(), d.UserRequest(), d.SourceOrder)
}

func renderImportSpecifier(c *TemplateContext, d *dependency.ESMImportSpecifier) error {
	target := c.target(d.ID())
	if err := addImport(c, d.ID(), target, d.Request(), d.UserRequest(), d.SourceOrder); err != nil {
		return err
	}
	rng, ok := d.Range()
	if !ok {
		return nil
	}
	local := c.Source.Original(rng.Start, rng.End)
	if target != "" {
		if err := checkProvided(c, d, target, local); err != nil {
			return err
		}
	}
	var v string
	if target != "" {
		v = c.importVar(target, d.UserRequest())
	}
	expr := c.ExportFromImport(ExportAccess{
		Dependency:  d.ID(),
		Target:      target,
		Request:     d.UserRequest(),
		ImportVar:   v,
		Ids:         d.Ids,
		Call:        d.Call,
		CallContext: d.Member,
		ASI:         d.ASI,
	})
	if d.Shorthand {
		expr = local + ": " + expr
	}
	c.Source.Replace(rng.Start, rng.End, expr)
	return nil
}

// checkProvided warns when a namespace target does not export the imported
// name.
func checkProvided(c *TemplateContext, d *dependency.ESMImportSpecifier, target ident.ModuleIdentifier, local string) error {
	if len(d.Ids) == 0 || c.Graph.GetExportsType(d.ID(), c.strict()) != graph.ExportsNamespace {
		return nil
	}
	info, err := c.Graph.GetPrefetchedExportsInfo(target, graph.PrefetchFull(), c.Runtime)
	if err != nil {
		return err
	}
	name := d.Ids[0]
	if info.Export(name).Provided != graph.NotProvided {
		return nil
	}
	msg := fmt.Sprintf("export '%s' (imported as '%s') was not found in '%s'", name, local, d.UserRequest())
	if names := info.ProvidedNames(); len(names) > 0 {
		msg += " (possible exports: " + strings.Join(names, ", ") + ")"
	}
	c.Warn(diag.KindCodegen, "%s", msg)
	return nil
}

func renderExportExpression(c *TemplateContext, d *dependency.ESMExportExpression) error {
	rng, ok := d.Range()
	if !ok {
		return nil
	}
	c.requirement(runtime.Exports | runtime.DefinePropertyGetters)
	if d.Declaration != "" {
		c.Source.Replace(rng.Start, d.Expression.Start, "/* ESM default export */ ")
		c.AddFragment(NewExportFragment(c.exportsArgument(), "default", d.Declaration))
		return nil
	}
	c.Source.Replace(rng.Start, d.Expression.Start,
		"/* ESM default export */ "+c.constKeyword()+" "+dependency.DefaultExportName+" = (")
	c.Source.Replace(d.Expression.End, rng.End, ");")
	c.AddFragment(NewExportFragment(c.exportsArgument(), "default", dependency.DefaultExportName))
	return nil
}

func renderExportImported(c *TemplateContext, d *dependency.ESMExportImportedSpecifier) error {
	target := c.target(d.ID())
	if err := addImport(c, d.ID(), target, d.Request(), d.UserRequest(), d.SourceOrder); err != nil {
		return err
	}
	if target == "" {
		return nil
	}
	v := c.importVar(target, d.UserRequest())
	c.requirement(runtime.Exports | runtime.DefinePropertyGetters)
	if !d.Star {
		expr := c.ExportFromImport(ExportAccess{
			Dependency: d.ID(),
			Target:     target,
			Request:    d.UserRequest(),
			ImportVar:  v,
			Ids:        d.Ids,
			ASI:        dependency.ASISafe,
		})
		c.AddFragment(NewExportFragment(c.exportsArgument(), d.Name, expr))
		return nil
	}
	return renderStarReexport(c, d, target, v)
}

// renderStarReexport defines a getter per name the star provides when the
// target's exports are known, and copies them at runtime otherwise.
func renderStarReexport(c *TemplateContext, d *dependency.ESMExportImportedSpecifier, target ident.ModuleIdentifier, v string) error {
	targetInfo, err := c.Graph.GetPrefetchedExportsInfo(target, graph.PrefetchFull(), c.Runtime)
	if err != nil {
		return err
	}
	if targetInfo.OtherProvided != graph.ProvisionUnknown {
		info, err := c.Graph.GetPrefetchedExportsInfo(c.Module.Identifier, graph.PrefetchFull(), c.Runtime)
		if err != nil {
			return err
		}
		for _, e := range info.Exports {
			if e.Provided != graph.Provided || e.Target == nil || e.Target.Module != target || c.Module.BuildInfo.HasExport(e.Name) {
				continue
			}
			c.AddFragment(NewExportFragment(c.exportsArgument(), e.Name, v+PropertyAccess([]string{e.Name}, 0)))
		}
		return nil
	}

	excluded := append([]string{"default"}, c.Module.BuildInfo.NamedExports...)
	slices.Sort(excluded)
	quoted := make([]string, len(excluded))
	for i, name := range excluded {
		quoted[i] = quote(name)
	}
	getter := "function(key) { return " + v + "[key]; }.bind(0, __WEBPACK_IMPORT_KEY__)"
	if c.Options.ArrowFunctions {
		getter = "() => " + v + "[__WEBPACK_IMPORT_KEY__]"
	}
	const prefix = "/* ESM reexport (unknown) */ "
	text := prefix + "var __WEBPACK_REEXPORT_OBJECT__ = {};\n" +
		prefix + "for(" + c.constKeyword() + " __WEBPACK_IMPORT_KEY__ in " + v + ") if([" + strings.Join(quoted, ",") +
		"].indexOf(__WEBPACK_IMPORT_KEY__) < 0) __WEBPACK_REEXPORT_OBJECT__[__WEBPACK_IMPORT_KEY__] = " + getter + "\n" +
		prefix + runtime.DefinePropertyGetters.Name() + "(" + c.exportsArgument() + ", __WEBPACK_REEXPORT_OBJECT__);\n"
	c.AddFragment(&Fragment{K: "esm reexport unknown " + v, S: StageESMImports, Pos: d.SourceOrder, Text: text})
	return nil
}

func renderCommonJSExports(c *TemplateContext, d *dependency.CommonJSExports) error {
	switch d.Base {
	case dependency.BaseModuleExports:
		c.requirement(runtime.Module)
	case dependency.BaseExports:
		c.requirement(runtime.Exports)
	case dependency.BaseThis:
		c.requirement(runtime.Exports)
		return replaceWith(c, d, func() (string, error) { return c.exportsArgument(), nil })
	}
	return nil
}

func renderAMDArray(c *TemplateContext, d *dependency.AMDRequireArray) error {
	return replaceWith(c, d, func() (string, error) {
		items := make([]string, 0, len(d.Items))
		for _, itemID := range d.Items {
			dep, ok := c.Graph.DependencyByID(itemID)
			if !ok {
				return "", diag.NewDanglingReferenceError(c.Module.Identifier, itemID)
			}
			md, ok := dependency.AsModuleDependency(dep)
			if !ok {
				return "", fmt.Errorf("amd item %s is not a module dependency", itemID.Short())
			}
			switch md.Request() {
			case "require":
				items = append(items, c.requirement(runtime.Require))
			case "exports":
				c.requirement(runtime.Exports)
				items = append(items, c.exportsArgument())
			case "module":
				items = append(items, c.requirement(runtime.Module))
			default:
				raw, err := c.ModuleRaw(c.target(itemID), md.UserRequest())
				if err != nil {
					return "", err
				}
				items = append(items, raw)
			}
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	})
}

func renderAMDRequire(c *TemplateContext, d *dependency.AMDRequire, block *dependency.AsyncBlock) error {
	rng, ok := d.Range()
	if !ok {
		return nil
	}
	promise := c.BlockPromise(block, "AMD require")
	oe := c.requirement(runtime.UncaughtErrorHandler)
	if !d.HasCallback {
		c.Source.Replace(rng.Start, d.Array.Start, promise+".then(function() { ")
		c.Source.Replace(d.Array.End, rng.End, ";})[\"catch\"]("+oe+")")
		return nil
	}
	c.Source.Replace(rng.Start, d.Array.Start, promise+".then(function() { var __WEBPACK_AMD_REQUIRE_ARRAY__ = ")
	c.Source.Replace(d.Array.End, d.Callback.Start, "; (")
	c.Source.Replace(d.Callback.End, rng.End, ").apply(null, __WEBPACK_AMD_REQUIRE_ARRAY__);})[\"catch\"]("+oe+")")
	return nil
}

func renderWorker(c *TemplateContext, d *dependency.Worker, block *dependency.AsyncBlock) error {
	return replaceWith(c, d, func() (string, error) {
		if block == nil || c.Chunks == nil {
			return "", fmt.Errorf("worker %q has no entry block", d.Request())
		}
		chunks := c.Chunks.BlockChunks(block.ID)
		if len(chunks) == 0 {
			return "", fmt.Errorf("worker %q has no chunk", d.Request())
		}
		ids := make([]ident.OutputID, len(chunks))
		for i, ch := range chunks {
			ids[i] = ch.ID
		}
		slices.SortFunc(ids, ident.CompareOutputID)
		p := c.requirement(runtime.PublicPath)
		u := c.requirement(runtime.GetChunkScriptFilename)
		b := c.requirement(runtime.BaseURI)
		return "/* worker import */ " + p + " + " + u + "(" + ids[0].JSON() + "), " + b, nil
	})
}
