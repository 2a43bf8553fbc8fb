// Package expr builds Earth Engine computation graphs. A graph is an inert
// value: nothing is evaluated until it is encoded and sent to the service,
// which keeps every query lazy until a widget asks for rows or tiles.
package expr

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
)

// Node is a lazily evaluated value in an Earth Engine computation graph.
type Node interface {
	base() Node
}

type constant struct {
	value any
}

func (c constant) base() Node { return c }

type invocation struct {
	function string
	args     map[string]Node
}

func (f *invocation) base() Node { return f }

type array struct {
	items []Node
}

func (a array) base() Node { return a }

// Constant wraps a JSON-encodable literal.
func Constant(v any) Node {
	return constant{value: v}
}

// Invoke calls a server-side Earth Engine function by name.
func Invoke(function string, args map[string]Node) Node {
	return &invocation{function: function, args: args}
}

// List builds a server-side list from its items.
func List(items ...Node) Node {
	return array{items: items}
}

// ValueNode is the wire form of a graph node. Exactly one field is set; a
// node with none set is the constant ConstantValue, which may be null or 0.
type ValueNode struct {
	ConstantValue           any                 `json:"constantValue,omitempty"`
	ValueReference          string              `json:"valueReference,omitempty"`
	FunctionInvocationValue *FunctionInvocation `json:"functionInvocationValue,omitempty"`
	ArrayValue              *ArrayValue         `json:"arrayValue,omitempty"`
}

func (v ValueNode) MarshalJSON() ([]byte, error) {
	switch {
	case v.ValueReference != "":
		return json.Marshal(struct {
			ValueReference string `json:"valueReference"`
		}{v.ValueReference})
	case v.FunctionInvocationValue != nil:
		return json.Marshal(struct {
			FunctionInvocationValue *FunctionInvocation `json:"functionInvocationValue"`
		}{v.FunctionInvocationValue})
	case v.ArrayValue != nil:
		return json.Marshal(struct {
			ArrayValue *ArrayValue `json:"arrayValue"`
		}{v.ArrayValue})
	default:
		return json.Marshal(struct {
			ConstantValue any `json:"constantValue"`
		}{v.ConstantValue})
	}
}

type FunctionInvocation struct {
	FunctionName string               `json:"functionName"`
	Arguments    map[string]ValueNode `json:"arguments,omitempty"`
}

type ArrayValue struct {
	Values []ValueNode `json:"values"`
}

// Expression is the request form accepted by value:compute, maps and
// table:computeFeatures.
type Expression struct {
	Result string               `json:"result"`
	Values map[string]ValueNode `json:"values"`
}

// Encode flattens root into an Expression. Identical sub-graphs share one
// entry in Values; entries used only once are inlined at their use site.
// Ids are assigned in post-order, so equal graphs encode to equal bytes.
func Encode(root Node) (Expression, error) {
	if root == nil {
		return Expression{}, fmt.Errorf("encode: nil expression")
	}

	enc := &encoder{
		values: make(map[string]ValueNode),
		ids:    make(map[string]string),
	}
	top, err := enc.intern(root)
	if err != nil {
		return Expression{}, err
	}

	result := top.ValueReference
	if result == "" {
		result = enc.add(top)
	}

	counts := make(map[string]int)
	counts[result]++
	for _, v := range enc.values {
		countRefs(v, counts)
	}

	out := Expression{Result: result, Values: make(map[string]ValueNode)}
	var keep func(id string)
	var expand func(v ValueNode) ValueNode
	expand = func(v ValueNode) ValueNode {
		switch {
		case v.ValueReference != "":
			if counts[v.ValueReference] == 1 {
				return expand(enc.values[v.ValueReference])
			}
			keep(v.ValueReference)
			return v
		case v.FunctionInvocationValue != nil:
			fn := &FunctionInvocation{FunctionName: v.FunctionInvocationValue.FunctionName}
			if len(v.FunctionInvocationValue.Arguments) > 0 {
				fn.Arguments = make(map[string]ValueNode, len(v.FunctionInvocationValue.Arguments))
				for name, arg := range v.FunctionInvocationValue.Arguments {
					fn.Arguments[name] = expand(arg)
				}
			}
			return ValueNode{FunctionInvocationValue: fn}
		case v.ArrayValue != nil:
			items := make([]ValueNode, len(v.ArrayValue.Values))
			for i, item := range v.ArrayValue.Values {
				items[i] = expand(item)
			}
			return ValueNode{ArrayValue: &ArrayValue{Values: items}}
		default:
			return v
		}
	}
	keep = func(id string) {
		if _, done := out.Values[id]; done {
			return
		}
		out.Values[id] = expand(enc.values[id])
	}
	keep(result)

	return out, nil
}

// MarshalCanonical returns the encoded expression as JSON. encoding/json
// sorts map keys, so the bytes are stable for equal graphs.
func MarshalCanonical(root Node) ([]byte, error) {
	e, err := Encode(root)
	if err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

type encoder struct {
	values map[string]ValueNode
	ids    map[string]string // canonical JSON -> id
	next   int
}

func (e *encoder) add(v ValueNode) string {
	id := strconv.Itoa(e.next)
	e.next++
	e.values[id] = v
	return id
}

func (e *encoder) intern(n Node) (ValueNode, error) {
	if n == nil {
		return ValueNode{}, fmt.Errorf("encode: nil node")
	}

	switch v := n.base().(type) {
	case constant:
		return ValueNode{ConstantValue: v.value}, nil

	case array:
		items := make([]ValueNode, len(v.items))
		for i, item := range v.items {
			iv, err := e.intern(item)
			if err != nil {
				return ValueNode{}, err
			}
			items[i] = iv
		}
		return ValueNode{ArrayValue: &ArrayValue{Values: items}}, nil

	case *invocation:
		fn := &FunctionInvocation{FunctionName: v.function}
		if len(v.args) > 0 {
			fn.Arguments = make(map[string]ValueNode, len(v.args))
			for _, name := range slices.Sorted(maps.Keys(v.args)) {
				av, err := e.intern(v.args[name])
				if err != nil {
					return ValueNode{}, fmt.Errorf("%s(%s): %w", v.function, name, err)
				}
				fn.Arguments[name] = av
			}
		}
		node := ValueNode{FunctionInvocationValue: fn}

		key, err := json.Marshal(node)
		if err != nil {
			return ValueNode{}, fmt.Errorf("%s: %w", v.function, err)
		}
		id, seen := e.ids[string(key)]
		if !seen {
			id = e.add(node)
			e.ids[string(key)] = id
		}
		return ValueNode{ValueReference: id}, nil

	default:
		return ValueNode{}, fmt.Errorf("encode: unsupported node %T", v)
	}
}

func countRefs(v ValueNode, counts map[string]int) {
	switch {
	case v.ValueReference != "":
		counts[v.ValueReference]++
	case v.FunctionInvocationValue != nil:
		for _, arg := range v.FunctionInvocationValue.Arguments {
			countRefs(arg, counts)
		}
	case v.ArrayValue != nil:
		for _, item := range v.ArrayValue.Values {
			countRefs(item, counts)
		}
	}
}
