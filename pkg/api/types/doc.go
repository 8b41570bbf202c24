// Package types defines the wire types of the task API: request and
// response bodies and the error envelope.
//
// All JSON field names are camelCase. The store keeps its own
// snake_case representation; handlers convert between the two so the
// wire contract can evolve independently of the schema.
package types
