// Package simulation provides an end-to-end test harness for the
// observation layer.
//
// The harness exercises the real engine, observers, results store, and
// reshaper over small hand-built cohorts. Scenarios are Go builders that
// construct a population table, run a configured observation window, and
// capture the flat results row for property-based assertions. Mutate hooks
// stand in for the host's transition models so scenarios can move
// simulants between states mid-run.
//
// Each test gets isolated temporary storage via t.TempDir().
//
// Usage:
//
//	func TestPersonTimeConservation(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    cfg := simulation.DefaultScenarioConfig(t, start, end, 91.3125)
//	    result := r.Run(simulation.Scenario{
//	        Name:   "closed-cohort",
//	        Config: cfg,
//	        Cohort: []simulation.PersonSpec{...},
//	    })
//	    simulation.AssertPersonTimeConserved(t, result, 8, 1e-9)
//	}
package simulation
