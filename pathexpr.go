// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

import (
	"fmt"
	"strings"
)

// Scope identifies one root of the scope chain a path expression may
// reference (spec §3.6, GLOSSARY "Scope chain"), in outer-to-inner order.
type Scope int

// Scope chain roots, outer (packet header) to inner (event payload).
const (
	ScopePacketHeader Scope = iota
	ScopeStreamPacketContext
	ScopeStreamEventHeader
	ScopeStreamEventContext
	ScopeEventContext
	ScopeEventPayload
	scopeCount
)

var scopeNames = [...]string{
	"stream.packet.header",
	"stream.packet.context",
	"stream.event.header",
	"stream.event.context",
	"event.context",
	"event.fields",
}

func (s Scope) String() string {
	if s < 0 || int(s) >= len(scopeNames) {
		return "unknown-scope"
	}
	return scopeNames[s]
}

// scopeByName resolves a scope-root keyword to a Scope; ok is false if
// name does not name a scope root.
func scopeByName(name string) (Scope, bool) {
	for i, n := range scopeNames {
		if n == name {
			return Scope(i), true
		}
	}
	return 0, false
}

// PathExpr is a path expression as authored by the caller: an optional
// leading scope-root keyword followed by dot-separated member names, e.g.
// "len" (relative, resolved against the enclosing scope chain) or
// "stream.packet.context.some_len" (absolute).
type PathExpr struct {
	components []string
	resolved   *ResolvedPath
}

// NewPathExpr builds a path expression from its dot-separated textual
// form.
func NewPathExpr(text string) (*PathExpr, error) {
	if text == "" {
		return nil, fmt.Errorf("pathexpr: empty path: %w", ErrInvalidArgument)
	}
	return &PathExpr{components: strings.Split(text, ".")}, nil
}

// ResolvedPath is the result of resolving a PathExpr against a
// ScopeChain: the scope it resolved into, the index path walked to reach
// the target field class, and the target itself.
type ResolvedPath struct {
	Scope   Scope
	Indices []int
	Target  *FieldClass
}

// ScopeChain carries the struct field class rooting each scope that may
// be present for a given trace/stream-class/event-class combination. A
// nil entry means that scope has no declared type for this combination.
type ScopeChain struct {
	roots [scopeCount]*FieldClass
}

// NewScopeChain builds a scope chain from its constituent struct field
// classes (any of which may be nil).
func NewScopeChain(packetHeader, streamPacketContext, streamEventHeader, streamEventContext, eventContext, eventPayload *FieldClass) *ScopeChain {
	sc := &ScopeChain{}
	sc.roots[ScopePacketHeader] = packetHeader
	sc.roots[ScopeStreamPacketContext] = streamPacketContext
	sc.roots[ScopeStreamEventHeader] = streamEventHeader
	sc.roots[ScopeStreamEventContext] = streamEventContext
	sc.roots[ScopeEventContext] = eventContext
	sc.roots[ScopeEventPayload] = eventPayload
	return sc
}

// RootAt returns the struct field class rooting the given scope, or nil.
func (sc *ScopeChain) RootAt(s Scope) *FieldClass {
	if s < 0 || int(s) >= len(sc.roots) {
		return nil
	}
	return sc.roots[s]
}

// descend walks a struct field class through dot-separated member names,
// returning the index path and the target field class.
func descend(root *FieldClass, names []string) ([]int, *FieldClass, bool) {
	cur := root
	var indices []int
	for _, name := range names {
		if cur == nil || cur.Kind != KindStruct {
			return nil, nil, false
		}
		idx, ok := cur.structIndex[name]
		if !ok {
			return nil, nil, false
		}
		indices = append(indices, idx)
		cur = cur.structFields[idx].Class
	}
	if cur == nil {
		return nil, nil, false
	}
	return indices, cur, true
}

// Resolve resolves p against chain, searching from the scope containing
// the referencing field class (from) outward to ScopePacketHeader (spec
// §4.3: "Resolution walks the scope chain from innermost outwards").
// If p's first component names a scope root explicitly, resolution is
// performed directly against that scope instead of walking outward.
// Resolution is idempotent: a second call to Resolve with the same chain
// walks it again and returns the same result.
func (p *PathExpr) Resolve(chain *ScopeChain, from Scope) (*ResolvedPath, error) {
	if len(p.components) == 0 {
		return nil, fmt.Errorf("pathexpr.Resolve: empty path: %w", ErrUnresolvablePath)
	}

	for n := 1; n <= len(p.components); n++ {
		scope, ok := scopeByName(strings.Join(p.components[:n], "."))
		if !ok {
			continue
		}
		root := chain.RootAt(scope)
		indices, target, ok := descend(root, p.components[n:])
		if !ok {
			return nil, fmt.Errorf("pathexpr.Resolve(%s): %w", p.text(), ErrUnresolvablePath)
		}
		rp := &ResolvedPath{Scope: scope, Indices: indices, Target: target}
		p.resolved = rp
		return rp, nil
	}

	for s := int(from); s >= int(ScopePacketHeader); s-- {
		root := chain.RootAt(Scope(s))
		if root == nil {
			continue
		}
		indices, target, ok := descend(root, p.components)
		if ok {
			rp := &ResolvedPath{Scope: Scope(s), Indices: indices, Target: target}
			p.resolved = rp
			return rp, nil
		}
	}
	return nil, fmt.Errorf("pathexpr.Resolve(%s): %w", p.text(), ErrUnresolvablePath)
}

// Resolved returns the result of the last successful Resolve call, if
// any.
func (p *PathExpr) Resolved() (*ResolvedPath, bool) {
	return p.resolved, p.resolved != nil
}

func (p *PathExpr) text() string {
	return strings.Join(p.components, ".")
}
