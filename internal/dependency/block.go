package dependency

import "github.com/roach88/jsgraph/internal/ident"

// EntryOptions turn a block into a new entry point (workers).
type EntryOptions struct {
	Name         string
	Runtime      string // runtime name hint
	ChunkLoading string // "jsonp" or "import-scripts"
}

// GroupOptions configure the chunk group created for a block.
type GroupOptions struct {
	Name  string // from a webpackChunkName comment, empty when unnamed
	Entry *EntryOptions
}

// AsyncBlock groups dependencies loaded together lazily. Its dependencies are
// factorized as a unit: if one fails to build, none are merged.
type AsyncBlock struct {
	ID           ident.BlockID
	Module       ident.ModuleIdentifier
	Parent       ident.BlockID // empty for a top-level block
	Request      string
	Options      *GroupOptions
	Dependencies []ident.DependencyID
	Blocks       []ident.BlockID
	Loc          Range
}

// IsEntry reports whether the block starts a new entry point.
func (b *AsyncBlock) IsEntry() bool {
	return b.Options != nil && b.Options.Entry != nil
}

// ChunkName returns the requested chunk name, or "" when unnamed.
func (b *AsyncBlock) ChunkName() string {
	if b.Options == nil {
		return ""
	}
	if b.Options.Name != "" {
		return b.Options.Name
	}
	if b.Options.Entry != nil {
		return b.Options.Entry.Name
	}
	return ""
}
