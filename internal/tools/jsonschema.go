package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// compileSchema turns a tool's raw JSON-Schema-shaped argument map into
// a compiled *jsonschema.Schema, giving every tool real argument
// validation instead of hand-rolled type assertions.
func compileSchema(name string, raw map[string]any) *jsonschema.Schema {
	b, err := json.Marshal(raw)
	if err != nil {
		panic(fmt.Sprintf("tools: %s: schema not serializable: %v", name, err))
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		panic(fmt.Sprintf("tools: %s: schema not valid JSON: %v", name, err))
	}

	url := "mem://tools/" + name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		panic(fmt.Sprintf("tools: %s: schema resource rejected: %v", name, err))
	}
	sch, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("tools: %s: schema did not compile: %v", name, err))
	}
	return sch
}
