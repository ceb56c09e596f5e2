// Package planner computes least-cost heating plans over a discretized
// horizon. The search is a shortest path through (timestep, heating level,
// temperature bucket) states: comfort bounds prune infeasible states, the
// minimum dwell time gates level switches, and edge weights are spot price
// times energy plus a mode-dependent comfort bias. Unreachable bounds are
// relaxed progressively and reported; the freeze-protection floor is the
// one constraint that never yields.
package planner
