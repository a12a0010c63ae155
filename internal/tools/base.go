package tools

import (
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// base supplies the Name/Description/Schema plumbing every tool shares;
// each concrete tool embeds it and only implements Execute.
type base struct {
	name        string
	description string
	rawSchema   map[string]any
	schema      *jsonschema.Schema
	deps        Deps
}

func newBase(deps Deps, name, description string, rawSchema map[string]any) base {
	return base{
		name:        name,
		description: description,
		rawSchema:   rawSchema,
		schema:      compileSchema(name, rawSchema),
		deps:        deps,
	}
}

func (b base) Name() string               { return b.name }
func (b base) Description() string        { return b.description }
func (b base) Schema() *jsonschema.Schema { return b.schema }
func (b base) RawSchema() map[string]any  { return b.rawSchema }
