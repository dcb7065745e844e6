// Package stencil is a Go implementation of a Jinja2/Tera-style text
// template engine: block-structured templates with inheritance, macros,
// filters and a pluggable extension registry.
package stencil

import (
	"io"

	"github.com/halvard/stencil/builtins"
	"github.com/halvard/stencil/registry"
	"github.com/halvard/stencil/value"
)

// Version of the stencil library.
const Version = "0.1.0"

// Engine holds a parsed, validated template set and renders from it.
type Engine = registry.Registry

// Options configures an Engine's validation limits and autoescape rules.
type Options = registry.Options

// Loader is an external source of template text, used by Engine.Reload.
type Loader = registry.Loader

// MapLoader serves template sources straight out of an in-memory map.
type MapLoader = registry.MapLoader

// Context is the Object-valued root a render reads variables from.
type Context = value.Context

// New builds an Engine with the full built-in filter/test/function library
// already installed.
func New(opts Options) *Engine {
	e := registry.New(opts)
	builtins.Install(e.Extensions())
	return e
}

// NewBare builds an Engine with no built-ins installed, for a host that
// wants to curate its own filter/test/function set from scratch.
func NewBare(opts Options) *Engine {
	return registry.New(opts)
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return value.NewContext()
}

// ContextFromMap builds a Context from a plain Go map, serializing each
// value with FromAny.
func ContextFromMap(m map[string]any) (*Context, error) {
	return value.FromMap(m)
}

// RenderString parses source as a one-off template against a fresh Engine
// carrying the full built-in library, and renders it to a string. Any
// extends/import it contains must resolve against an empty template set, so
// this is for standalone templates only; a host juggling a real template
// set should build an Engine with New and call Add/Render directly.
func RenderString(source string, vars map[string]any, autoescape bool) (string, error) {
	ctx, err := value.FromMap(vars)
	if err != nil {
		return "", err
	}
	e := New(Options{})
	return e.OneOff(source, ctx, autoescape)
}

// RenderStringTo is RenderString, writing into w instead of returning a
// string.
func RenderStringTo(source string, vars map[string]any, autoescape bool, w io.Writer) error {
	out, err := RenderString(source, vars, autoescape)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}
