// Package edn holds the dynamically typed transaction payload.
//
// Callers hand the transactor nested arrays, objects and atoms decoded from
// JSON or YAML. The payload is represented by the closed Value interface and
// is classified into typed operations in a single pass; nothing past the
// classifier inspects these values.
//
// Keywords have no JSON representation of their own, so a string with a
// leading colon (":person/name") is read as a keyword wherever the position
// allows one.
package edn
