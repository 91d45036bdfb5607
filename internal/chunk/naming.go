package chunk

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/jsgraph/internal/ident"
)

// ChunkInfo describes an unnamed chunk to a Namer.
type ChunkInfo struct {
	Kind     Kind
	Requests []string // requests of the blocks loading the chunk, sorted
	Modules  []string // readable names of the chunk's modules, sorted
}

// Namer names chunks that have no name of their own. It is called at most
// once per chunk, possibly concurrently for different chunks, and every
// call returns before ids are assigned. ok false leaves the chunk unnamed.
type Namer interface {
	NameChunk(ctx context.Context, info ChunkInfo) (name string, ok bool, err error)
}

// NamerFunc adapts a function to Namer.
type NamerFunc func(ctx context.Context, info ChunkInfo) (string, bool, error)

func (f NamerFunc) NameChunk(ctx context.Context, info ChunkInfo) (string, bool, error) {
	return f(ctx, info)
}

func nameChunks(ctx context.Context, chunks []*Chunk, readable map[ident.ModuleIdentifier]string, opts Options) error {
	var pending []*Chunk
	for _, c := range chunks {
		if c.Kind != KindEntry && c.Name == "" && c.emitted() {
			pending = append(pending, c)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	if opts.Namer != nil {
		names := make([]string, len(pending))
		eg, ctx := errgroup.WithContext(ctx)
		limit := opts.Parallelism
		if limit <= 0 {
			limit = 8
		}
		eg.SetLimit(limit)
		for i, c := range pending {
			info := chunkInfo(c, readable)
			eg.Go(func() error {
				name, ok, err := opts.Namer.NameChunk(ctx, info)
				if err != nil {
					return fmt.Errorf("name chunk for %s: %w", strings.Join(info.Requests, ", "), err)
				}
				if ok {
					names[i] = name
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
		for i, c := range pending {
			c.Name = names[i]
		}
	}

	if opts.AsyncChunkName {
		for _, c := range pending {
			if c.Name == "" && len(c.requests) > 0 {
				c.Name = requestToID(slices.Min(c.requests))
			}
		}
	}
	return nil
}

func chunkInfo(c *Chunk, readable map[ident.ModuleIdentifier]string) ChunkInfo {
	info := ChunkInfo{Kind: c.Kind, Requests: slices.Sorted(slices.Values(c.requests))}
	for _, m := range c.Modules {
		info.Modules = append(info.Modules, readable[m])
	}
	slices.Sort(info.Modules)
	return info
}
