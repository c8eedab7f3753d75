// Package harness replays scripted API histories through the poller and
// checks what the view was asked to show.
//
// # Scenario Format
//
// Scenarios are YAML files. Each cycle sets what the fake API serves, then
// runs one poll cycle (or invokes a command) against it:
//
//	name: order_delta
//	description: "New events are replayed in creation order"
//	kind: order
//	id: "42"
//	backfill: true            # optional, defaults to true
//	commands:                 # optional: rel -> status the command returns
//	  connectAccount: ACCOUNT_CONNECTED
//	cycles:
//	  - status: ORDER_CREATED
//	    events:
//	      - { type: ORDER_CREATED, created_at: 1000 }
//	    expect:
//	      outcome: first_observation
//	      replayed: 1
//	  - status: ORDER_CREATED
//	    events: [...]
//	    fail: events            # snapshot | events | commands answer 503
//	    expect:
//	      phase: events
//	      error: TRANSPORT_ERROR
//	  - status: ORDER_CREATED
//	    events: [...]
//	    invoke: connectAccount  # invoke instead of polling
//	assertions:
//	  - type: view_contains
//	    line: "status order/42 ORDER_CREATED"
//	  - type: view_order
//	    lines: ["row order/42 ORDER_CREATED@1000", "snapshot order/42 ORDER_CREATED"]
//	  - type: view_count
//	    op: row
//	    count: 1
//	  - type: final_status
//	    status: ORDER_CREATED
//	  - type: cursor
//	    count: 1
//
// View lines use the view.Recorder format. RunWithGolden compares the full
// recording against testdata/golden/<name>.golden.
package harness
