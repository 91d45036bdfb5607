package ident

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for a future hash migration.
const (
	DomainDependency = "jsgraph/dependency/v1"
	DomainBlock      = "jsgraph/block/v1"
	DomainContent    = "jsgraph/content/v1"
	DomainModuleID   = "jsgraph/module-id/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
// The null separator keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// NewDependencyID derives the id of a dependency from its owner, its type tag,
// its request, and its ordinal among same-typed requests in the owner.
//
// The ordinal is counted in source order, so editing unrelated code in a module
// keeps the ids of its dependencies stable across rebuilds.
func NewDependencyID(owner ModuleIdentifier, depType, request string, ordinal int) (DependencyID, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"owner":   string(owner),
		"type":    depType,
		"request": request,
		"ordinal": ordinal,
	})
	if err != nil {
		return "", fmt.Errorf("NewDependencyID: %w", err)
	}
	return DependencyID(hashWithDomain(DomainDependency, canonical)), nil
}

// NewBlockID derives the id of an async block. Parent is empty for top-level blocks.
func NewBlockID(owner ModuleIdentifier, parent BlockID, request string, ordinal int) (BlockID, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"owner":   string(owner),
		"parent":  string(parent),
		"request": request,
		"ordinal": ordinal,
	})
	if err != nil {
		return "", fmt.Errorf("NewBlockID: %w", err)
	}
	return BlockID(hashWithDomain(DomainBlock, canonical)), nil
}

// ContentHash hashes module source for change detection between passes.
func ContentHash(source []byte) string {
	return hashWithDomain(DomainContent, source)
}

// ShortHash hashes a readable name into a short hex digest used by
// deterministic module ids.
func ShortHash(name string, length int) string {
	sum := hashWithDomain(DomainModuleID, []byte(name))
	if length <= 0 || length > len(sum) {
		return sum
	}
	return sum[:length]
}

// MustDependencyID is like NewDependencyID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDependencyID(owner ModuleIdentifier, depType, request string, ordinal int) DependencyID {
	id, err := NewDependencyID(owner, depType, request, ordinal)
	if err != nil {
		panic(err)
	}
	return id
}

// MustBlockID is like NewBlockID but panics on error.
func MustBlockID(owner ModuleIdentifier, parent BlockID, request string, ordinal int) BlockID {
	id, err := NewBlockID(owner, parent, request, ordinal)
	if err != nil {
		panic(err)
	}
	return id
}
