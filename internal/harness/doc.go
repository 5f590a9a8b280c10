// Package harness runs conformance scenarios for the client.
//
// A scenario is a YAML file that lists canned Web API responses and a
// sequence of SDK operations. The harness starts a fake Web API, runs each
// operation through a real client.Client, checks each step's expected
// outcome, and records every request the client sent. The request trace
// is what assertions and golden files compare, so scenarios pin down the
// wire behavior of the request builders: paths, query strings, headers
// and bodies.
//
// # Scenario Format
//
//	name: account-lifecycle
//	description: "What this scenario validates"
//	definitions: ../definitions.json
//	config:
//	  tag: harness
//	  fetch_relationships: true
//	routes:
//	  - method: POST
//	    path: accounts
//	    responses:
//	      - status: 204
//	        headers:
//	          OData-EntityId: "{service_root}/accounts(<id>)"
//	steps:
//	  - op: create
//	    entity: account
//	    attributes:
//	      name: Contoso
//	      primarycontactid: {ref: contact, id: <id>}
//	    expect:
//	      id: <id>
//	  - op: retrieve_all
//	    query: |
//	      entity: "account"
//	      columns: ["name"]
//	    expect:
//	      count: 3
//	assertions:
//	  - type: request_contains
//	    method: POST
//	    path: accounts
//	    body: { name: Contoso }
//
// Routes match on method and path prefix, first match wins. A route's
// responses are served in order and the last one repeats. A step without
// expect must succeed; expect.error names the client error code a failing
// step must return.
//
// # Assertion Types
//
//   - request_contains: some request matches method, path and the query,
//     header and body subsets
//   - request_order: requests written as "METHOD path" appear in this
//     relative order
//   - request_count: exactly count requests match method and path
//
// A trailing "*" in an assertion path matches a prefix.
//
// # Deterministic Traces
//
// The fake server's address changes per run. The harness rewrites it to
// "{service_root}" in recorded bodies, and query strings and headers are
// recorded as sorted maps, so traces are identical across runs and can be
// compared against golden files with RunWithGolden.
package harness
