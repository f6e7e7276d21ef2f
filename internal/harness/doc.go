// Package harness runs scripted store scenarios for conformance testing.
//
// # Scenario Format
//
// Scenarios are YAML files. Events are declared once under a short ref and
// signed with deterministic keys derived from the author alias, so every
// run produces the same ids. Steps then act on the store by ref:
//
//	name: profile_replacement
//	description: "A newer profile replaces the older one"
//	events:
//	  - ref: v1
//	    author: alice
//	    kind: 0
//	    created_at: 100
//	    content: '{"name":"first"}'
//	steps:
//	  - add: v1
//	    expect: { inserted: true }
//	  - query: '{"kinds":[0]}'
//	    expect: { refs: [v1] }
//	assertions:
//	  - type: trace_contains
//	    line: "  +v1"
//	  - type: final_state
//	    stored: [v1]
//
// # Steps
//
//   - add: store one event (expect.inserted)
//   - remove: delete events by ref (expect.removed)
//   - query / count: run a filter or filter array (expect.refs / expect.count)
//   - replaceable: resolve a slot winner (expect.refs)
//   - decrypt: cache plaintext for an event (expect.inserted)
//   - search_decrypted: search cached plaintext (expect.refs)
//
// # Trace
//
// Every step appends one line to the trace, followed by the notifications
// the store emitted for it ("+ref" inserted, "-ref" removed, "~ref"
// plaintext cached). Traces use refs rather than ids so golden files stay
// readable.
package harness
