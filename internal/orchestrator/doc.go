// Package orchestrator drives an execution engine through fast-forward,
// warmup and measurement phases, and creates or restores checkpoints.
//
// Architecture notes:
//   - The engine calls Orchestrator.Dispatch synchronously for every exit
//     event; each mode binds one handler per event kind.
//   - Handlers keep no context of their own. Everything that must survive
//     between deliveries lives in RunState, so each call resumes from it.
//   - Scheduler, StatsWindow and CheckpointManager are thin adapters over
//     the engine; the Orchestrator upholds the one-outstanding-MAX_INSTS rule.
//   - Every transition, arm, stats action and checkpoint is appended to a
//     JSONL run log, and Run returns a Report even when the exit is unexpected.
package orchestrator
