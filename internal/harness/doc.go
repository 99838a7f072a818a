// Package harness runs transaction scenarios against a fresh in-memory
// store and compares what each step committed with golden files.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: people_upsert
//	description: "Identity upserts replace cardinality-one values"
//	schema:
//	  - ../schema/people.cue
//	lookup_ref_policy: fail
//	setup:
//	  - [{":db/id": "ada", ":person/name": "Ada"}]
//	steps:
//	  - name: rename
//	    transact: [[":db/add", [":person/name", "Ada"], ":person/age", 37]]
//	  - name: conflict
//	    transact: '[{":person/email": "taken@example.com"}]'
//	    expect:
//	      error: unique_conflict
//	assertions:
//	  - type: entity
//	    entity: [":person/name", "Ada"]
//	    expect: {":person/age": 37}
//
// Schema paths are CUE files or directories, installed in order before the
// setup payloads. A transact payload is either YAML terms or a string
// holding JSON.
//
// # Assertion Types
//
//   - entity: the entity exists and its attributes hold the expected values
//   - absent: the entity reference resolves to nothing
//   - tx_count: the number of committed transactions after bootstrap
//   - attribute: the schema entry of an attribute
//
// # Deterministic Output
//
// Every run uses a memkv engine and a testutil.DeterministicClock, so
// entids and instants repeat across runs. The golden trace names entities
// by ident or by the first tempid that named them, and leaves out
// :db/txInstant, so golden files survive changes to allocation order.
package harness
