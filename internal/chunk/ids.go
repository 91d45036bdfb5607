package chunk

import (
	"cmp"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/jsgraph/internal/graph"
	"github.com/roach88/jsgraph/internal/ident"
)

// Deterministic ids use at least this many digits.
const minIDDigits = 3

// maxChunkKey bounds chunk names derived from module names.
const maxChunkKey = 100

// readableName names a module relative to context: "./src/a.js", or for
// context modules "./src/locales sync ^\.\/.*$".
func readableName(context string, m *graph.Module) string {
	name := relative(context, m.Resource)
	if m.Kind != graph.KindContext || m.Context == nil {
		return name
	}
	name += " sync"
	if !m.Context.Recursive {
		name += " nonrecursive"
	}
	if m.Context.RegExp != "" {
		name += " " + m.Context.RegExp
	}
	return name
}

// relative returns p relative to dir, always starting with "./" or "../".
func relative(dir, p string) string {
	if dir == "" {
		return p
	}
	dir, p = path.Clean(dir), path.Clean(p)
	if p == dir {
		return "."
	}
	from := strings.Split(strings.Trim(dir, "/"), "/")
	to := strings.Split(strings.Trim(p, "/"), "/")
	if dir == "/" {
		from = nil
	}
	i := 0
	for i < len(from) && i < len(to) && from[i] == to[i] {
		i++
	}
	if i == len(from) {
		return "./" + strings.Join(to[i:], "/")
	}
	return strings.Repeat("../", len(from)-i) + strings.Join(to[i:], "/")
}

var (
	leadingRelative = regexp.MustCompile(`^(\.\.?/)+`)
	unsafeRun       = regexp.MustCompile(`(^[.-]|[^a-zA-Z0-9_-])+`)
)

// requestToID turns a request or readable name into an id-safe string:
// "./src/lazy.js" becomes "src_lazy_js".
func requestToID(s string) string {
	return unsafeRun.ReplaceAllString(leadingRelative.ReplaceAllString(s, ""), "_")
}

func assignModuleIDs(readable map[ident.ModuleIdentifier]string, mode IDs) map[ident.ModuleIdentifier]ident.OutputID {
	out := make(map[ident.ModuleIdentifier]ident.OutputID, len(readable))
	if mode != IDsDeterministic {
		for m, name := range readable {
			out[m] = ident.OutputID(name)
		}
		return out
	}
	names := make([]string, 0, len(readable))
	for _, name := range readable {
		names = append(names, name)
	}
	numbers := assignNumbers(names)
	for m, name := range readable {
		out[m] = numbers[name]
	}
	return out
}

// chunkKey is the name a chunk id derives from: the chunk name, or the
// names of its modules joined by "-".
func chunkKey(c *Chunk, readable map[ident.ModuleIdentifier]string) string {
	if c.Name != "" {
		return c.Name
	}
	parts := make([]string, 0, len(c.Modules))
	for _, m := range c.Modules {
		parts = append(parts, requestToID(readable[m]))
	}
	slices.Sort(parts)
	key := strings.Join(parts, "-")
	if len(key) > maxChunkKey {
		key = key[:maxChunkKey-9] + "-" + ident.ShortHash(key, 8)
	}
	return key
}

func assignChunkIDs(chunks []*Chunk, readable map[ident.ModuleIdentifier]string, mode IDs) {
	keys := make(map[*Chunk]string, len(chunks))
	for _, c := range chunks {
		keys[c] = chunkKey(c, readable)
	}
	// Equal keys are told apart by kind and by creation order, which
	// follows sorted entries and sorted modules.
	ordered := slices.SortedFunc(slices.Values(chunks), func(a, b *Chunk) int {
		return cmp.Or(
			cmp.Compare(keys[a], keys[b]),
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.order, b.order),
		)
	})
	unique := make(map[*Chunk]string, len(chunks))
	taken := make(map[string]bool, len(chunks))
	for _, c := range ordered {
		key := keys[c]
		for n := 2; taken[key]; n++ {
			key = keys[c] + "~" + strconv.Itoa(n)
		}
		taken[key] = true
		unique[c] = key
	}
	if mode != IDsDeterministic {
		for c, key := range unique {
			c.ID = ident.OutputID(key)
		}
		return
	}
	names := make([]string, 0, len(unique))
	for _, key := range unique {
		names = append(names, key)
	}
	numbers := assignNumbers(names)
	for c, key := range unique {
		c.ID = numbers[key]
	}
}

// assignNumbers maps names to numbers below a power of ten, picked so the
// table stays at most 80% full. A name's number is its hash modulo the
// range; collisions probe upward in sorted name order.
func assignNumbers(names []string) map[string]ident.OutputID {
	names = slices.Clone(names)
	slices.Sort(names)
	names = slices.Compact(names)

	limit := uint64(1)
	for range minIDDigits {
		limit *= 10
	}
	for uint64(len(names))*10 > limit*8 {
		limit *= 10
	}
	used := make(map[uint64]bool, len(names))
	out := make(map[string]ident.OutputID, len(names))
	for _, name := range names {
		n := hashNumber(name) % limit
		for used[n] {
			n = (n + 1) % limit
		}
		used[n] = true
		out[name] = ident.OutputID(strconv.FormatUint(n, 10))
	}
	return out
}

func hashNumber(name string) uint64 {
	n, _ := strconv.ParseUint(ident.ShortHash(name, 15), 16, 64)
	return n
}
