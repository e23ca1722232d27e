package gql

import (
	"encoding/json"
	"strconv"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// JSON carries arbitrary JSON objects such as paste metadata.
var JSON = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "Arbitrary JSON value",
	Serialize:   serializeJSON,
	ParseValue:  func(v interface{}) interface{} { return v },
	ParseLiteral: func(v ast.Value) interface{} {
		return parseLiteral(v)
	},
})

func serializeJSON(v interface{}) interface{} {
	switch v := v.(type) {
	case json.RawMessage:
		if len(v) == 0 {
			return nil
		}
		var out interface{}
		if err := json.Unmarshal(v, &out); err != nil {
			return nil
		}
		return out
	case map[string]any:
		if len(v) == 0 {
			return nil
		}
		return v
	case map[string]string:
		if len(v) == 0 {
			return nil
		}
		return v
	}
	return v
}

func parseLiteral(v ast.Value) interface{} {
	switch v := v.(type) {
	case *ast.StringValue:
		return v.Value
	case *ast.BooleanValue:
		return v.Value
	case *ast.EnumValue:
		return v.Value
	case *ast.IntValue:
		if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			return n
		}
	case *ast.FloatValue:
		if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return f
		}
	case *ast.ListValue:
		out := make([]interface{}, 0, len(v.Values))
		for _, item := range v.Values {
			out = append(out, parseLiteral(item))
		}
		return out
	case *ast.ObjectValue:
		out := make(map[string]interface{}, len(v.Fields))
		for _, f := range v.Fields {
			out[f.Name.Value] = parseLiteral(f.Value)
		}
		return out
	}
	return nil
}
