// Package harness runs query scenarios: scripted world mutations
// interleaved with query runs, checked against expected rows and golden
// traces.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	queries:
//	  inherited:
//	    terms:
//	      - id: Bar
//	      - id: Foo
//	        trav: up
//	steps:
//	  - op: new
//	    name: Foo
//	  - op: new
//	    name: parent
//	    ids: [Foo]
//	  - op: new
//	    name: child
//	    ids: [Bar, [ChildOf, parent]]
//	  - run: inherited
//	    expect:
//	      - "[child] | Bar; Foo<-parent"
//
// Step operations are new, rel (a traversable relationship), add, remove,
// delete, name and delete_empty. A step with error: expects the step to
// fail with a message containing that text.
//
// # Cache Kinds
//
// Every run step evaluates its query both uncached and cached. The cached
// binding is created at the first run and maintained incrementally by
// every later mutation, so each run also checks that incremental
// maintenance agrees with direct evaluation.
//
// # Deterministic Testing
//
// The harness uses:
//   - A logical clock (engine.Clock) shared by the recorder and queries
//   - Sequential run ids (testutil.SequentialRunIDs)
//   - Deterministic entity allocation in a fresh store per scenario
//
// This ensures identical traces across runs for golden file comparison.
// With WithJournal, the mutations and runs of a scenario are journaled and
// can be verified with journal.Replay.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/self_up_childof.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, err := range result.Errors {
//	        log.Println(err)
//	    }
//	}
package harness
