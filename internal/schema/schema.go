// Package schema declares the fixed set of tools the server exposes and the
// argument shape each one accepts.
package schema

import (
	"encoding/json"
	"fmt"
)

// Kind is the primitive kind of a schema node.
type Kind string

const (
	KindString Kind = "string"
	KindObject Kind = "object"
)

// Node describes an accepted value shape. Object nodes carry their fields in
// declaration order so the rendered schema is stable.
type Node struct {
	Kind        Kind
	Description string
	Fields      []Field
}

// Field is one named property of an object node.
type Field struct {
	Name     string
	Required bool
	Node     Node
}

// Tool is an immutable tool definition.
type Tool struct {
	Name        string
	Description string
	Schema      Node
}

func object(fields ...Field) Node {
	return Node{Kind: KindObject, Fields: fields}
}

func requiredString(name, description string) Field {
	return Field{
		Name:     name,
		Required: true,
		Node:     Node{Kind: KindString, Description: description},
	}
}

// orderedProps renders object properties in field order. encoding/json sorts
// map keys, which would lose the declaration order.
type orderedProps []Field

func (p orderedProps) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, f := range p {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(nodeJSON(f.Node))
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", f.Name, err)
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}

type jsonNode struct {
	Type        Kind         `json:"type"`
	Description string       `json:"description,omitempty"`
	Properties  orderedProps `json:"properties,omitempty"`
	Required    []string     `json:"required,omitempty"`
}

func nodeJSON(n Node) any {
	out := jsonNode{Type: n.Kind, Description: n.Description}
	if n.Kind != KindObject {
		return out
	}
	out.Properties = orderedProps(n.Fields)
	for _, f := range n.Fields {
		if f.Required {
			out.Required = append(out.Required, f.Name)
		}
	}
	if out.Properties == nil {
		// properties is always present on object schemas, even when empty.
		return struct {
			jsonNode
			Properties struct{} `json:"properties"`
		}{jsonNode: out}
	}
	return out
}

// Describe renders the tool's argument schema as JSON Schema.
func Describe(t *Tool) json.RawMessage {
	data, err := json.Marshal(nodeJSON(t.Schema))
	if err != nil {
		panic(fmt.Sprintf("schema: describe %s: %v", t.Name, err))
	}
	return data
}
