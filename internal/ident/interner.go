package ident

import (
	"sync"

	"golang.org/x/text/unicode/norm"
)

// RequestKey is the interned handle of a (context, request) pair.
type RequestKey uint32

// Interner maps (context, request) pairs to small integer keys so identical
// requests coming from different modules share one resolution.
// Safe for concurrent use.
type Interner struct {
	mu      sync.RWMutex
	keys    map[string]RequestKey
	entries []internedRequest
}

type internedRequest struct {
	context string
	request string
}

// NewInterner creates an empty interner.
func NewInterner() *Interner {
	return &Interner{keys: make(map[string]RequestKey)}
}

// Intern returns the key for the pair, allocating one on first sight.
// Both parts are NFC normalized so visually identical paths collapse.
func (in *Interner) Intern(context, request string) RequestKey {
	context = norm.NFC.String(context)
	request = norm.NFC.String(request)
	k := context + "\x00" + request

	in.mu.RLock()
	key, ok := in.keys[k]
	in.mu.RUnlock()
	if ok {
		return key
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if key, ok := in.keys[k]; ok {
		return key
	}
	key = RequestKey(len(in.entries))
	in.entries = append(in.entries, internedRequest{context: context, request: request})
	in.keys[k] = key
	return key
}

// Lookup returns the pair behind a key.
func (in *Interner) Lookup(key RequestKey) (context, request string, ok bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if int(key) >= len(in.entries) {
		return "", "", false
	}
	e := in.entries[key]
	return e.context, e.request, true
}

// Len returns the number of distinct pairs seen.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.entries)
}
