// Package scope decides whether a parsed client operation is admitted
// against a share token's allow-list.
package scope

import (
	"reflect"

	"github.com/n9te9/graphql-parser/ast"
)

// Entry is a single allow-listed operation. For an entry to match, its
// QueryName must equal the operation's top-level field name, and every
// (argName, requiredValue) pair in RequiredArgs must equal the
// corresponding operation variable by strict value equality.
type Entry struct {
	QueryName    string         `json:"queryName"`
	RequiredArgs map[string]any `json:"requiredArgs,omitempty"`
}

// Set is the allow-list carried by a share-token AuthContext.
type Set struct {
	AllowedQueries []Entry `json:"allowedQueries"`
}

// Allow reports whether doc's first query operation's top-level field is
// admitted by scopes, given the operation's variables.
//
// Mutations are never admitted by a share token in this version: only the
// first OperationDefinition of kind "query" is considered.
func Allow(doc *ast.Document, variables map[string]any, scopes Set) bool {
	fieldName, ok := OperationFieldName(doc)
	if !ok {
		return false
	}

	for _, entry := range scopes.AllowedQueries {
		if entry.QueryName != fieldName {
			continue
		}
		if argsMatch(entry.RequiredArgs, variables) {
			return true
		}
	}

	return false
}

// OperationFieldName walks doc looking for the first OperationDefinition of
// kind "query" and returns the name of its first top-level selection field.
// Also used outside this package to label query-log events without a
// second AST walk.
func OperationFieldName(doc *ast.Document) (string, bool) {
	if doc == nil {
		return "", false
	}

	for _, def := range doc.Definitions {
		opDef, ok := def.(*ast.OperationDefinition)
		if !ok || opDef.Operation != ast.Query {
			continue
		}

		for _, sel := range opDef.SelectionSet {
			if field, ok := sel.(*ast.Field); ok {
				return field.Name.String(), true
			}
		}
		return "", false
	}

	return "", false
}

// argsMatch reports whether every required arg equals the corresponding
// operation variable by strict value equality. No type coercion is
// applied: a string "42" never matches a numeric 42.
func argsMatch(required map[string]any, variables map[string]any) bool {
	for name, requiredValue := range required {
		actual, present := variables[name]
		if !present {
			return false
		}
		if !reflect.DeepEqual(requiredValue, actual) {
			return false
		}
	}
	return true
}
