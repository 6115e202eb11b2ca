// Package typesystem implements the dynamic cast registry named in spec
// §9 ("Type system for filters": a registry mapping (source type id,
// target trait id) -> caster closure, built once, looked up by (TypeId,
// TypeId)), grounded on http/type_handler.rs's TypeSystemBuilder/
// TypeSystem.
//
// The original implementation keys its registry on Rust's TypeId because
// Rust has no built-in way to recover a concrete type from a boxed
// `dyn Any` other than that id, and needs a macro
// (configure_type_system!) plus a DownstreamWrapper trait-object dance to
// carry a typed closure around as Any. Go already has that: a type
// assertion on an `any` does exactly what the registry exists to
// provide. This package keeps the registry's shape (built once, queried
// by a pair of types, read-only after Build) but keys it on
// reflect.Type, and RegisterCast uses generics instead of a macro.
package typesystem

import (
	"reflect"

	"github.com/tiihttp/tii/internal/tiierr"
)

// caster adapts a registered func(SRC) (DST, bool) down to an untyped
// form the Registry can store regardless of SRC/DST.
type caster func(src any) (any, bool)

// Builder accumulates casts before Build freezes them into a Registry.
// Mirrors TypeSystemBuilder; the split exists so construction (mutable)
// and lookup (read-only, per spec's "read-only after server
// construction" invariant) are distinct types.
type Builder struct {
	casts map[reflect.Type]map[reflect.Type]caster
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{casts: make(map[reflect.Type]map[reflect.Type]caster)}
}

// RegisterCast records how to view a SRC value as a DST one. DST is
// typically an interface SRC implements, or a related concrete type a
// filter wants without needing to import SRC's package. caster returns
// (zero, false) to signal a value-dependent cast failure distinct from
// "no cast registered at all".
func RegisterCast[SRC, DST any](b *Builder, cast func(SRC) (DST, bool)) {
	srcType := reflect.TypeOf((*SRC)(nil)).Elem()
	dstType := reflect.TypeOf((*DST)(nil)).Elem()
	byTarget := b.casts[srcType]
	if byTarget == nil {
		byTarget = make(map[reflect.Type]caster)
		b.casts[srcType] = byTarget
	}
	byTarget[dstType] = func(src any) (any, bool) {
		typed, ok := src.(SRC)
		if !ok {
			return nil, false
		}
		dst, ok := cast(typed)
		if !ok {
			return nil, false
		}
		return dst, true
	}
}

// Build freezes b into a read-only Registry. The Builder remains usable
// but further RegisterCast calls do not affect Registrys already built
// from it.
func (b *Builder) Build() *Registry {
	frozen := make(map[reflect.Type]map[reflect.Type]caster, len(b.casts))
	for src, byTarget := range b.casts {
		copied := make(map[reflect.Type]caster, len(byTarget))
		for dst, c := range byTarget {
			copied[dst] = c
		}
		frozen[src] = copied
	}
	return &Registry{casts: frozen}
}

// Registry is the read-only, looked-up-by-(source type, target type)
// cast table a Builder produces. The zero value (and a nil *Registry)
// has no registered casts, so Cast always returns a TypeSystemError
// reporting the source type as unknown on an unconfigured type system
// rather than panicking.
type Registry struct {
	casts map[reflect.Type]map[reflect.Type]caster
}

// Cast looks up a caster from src's dynamic type to DST and, if one is
// registered, applies it. Mirrors TypeCasterWrapper::call's three-way
// failure split (source type unknown to the registry at all, no cast to
// the requested target, or the registered cast rejected this particular
// value), reported as tiierr.TypeSystemError so callers can errors.As
// it the same way as any other tii error.
func Cast[DST any](r *Registry, src any) (DST, error) {
	var zero DST
	if src == nil {
		return zero, tiierr.NewTypeSystemError("cannot cast a nil source value")
	}
	dstType := reflect.TypeOf((*DST)(nil)).Elem()
	if r == nil || r.casts == nil {
		return zero, tiierr.NewTypeSystemError("no type system configured: source type unknown")
	}
	srcType := reflect.TypeOf(src)
	byTarget, ok := r.casts[srcType]
	if !ok {
		return zero, tiierr.NewTypeSystemError("source type unknown to type system: " + srcType.String())
	}
	cast, ok := byTarget[dstType]
	if !ok {
		return zero, tiierr.NewTypeSystemError("no cast registered from " + srcType.String() + " to " + dstType.String())
	}
	out, ok := cast(src)
	if !ok {
		return zero, tiierr.NewTypeSystemError("cast from " + srcType.String() + " to " + dstType.String() + " rejected this value")
	}
	return out.(DST), nil
}

// CanCast reports whether a cast from src's dynamic type to DST is
// registered at all, without invoking it. Useful for a filter deciding
// whether to attempt Cast in the first place.
func CanCast[DST any](r *Registry, src any) bool {
	if src == nil || r == nil || r.casts == nil {
		return false
	}
	dstType := reflect.TypeOf((*DST)(nil)).Elem()
	byTarget, ok := r.casts[reflect.TypeOf(src)]
	if !ok {
		return false
	}
	_, ok = byTarget[dstType]
	return ok
}
