// Package core runs the read and write nodes of the pipeline editor.
//
// It owns no file format logic of its own. The pieces it wires together:
//
//   - acquire: remote sources become local files (downloads, S3, uploads).
//   - plan: sources and options become a read plan; tables and a target
//     become a write plan.
//   - eval: plans are executed against the file libraries.
//   - StateStore: node snapshots and the run history are persisted.
//
// # Read nodes
//
// [Service.ReadNode] takes a [ReadState] snapshot, acquires its sources,
// builds the plan and evaluates it. When several files are read with the
// auto strategy and cannot be stacked, the result keeps the first file and
// carries a warning instead of an error:
//
//	res, err := svc.ReadNode(ctx, core.NewReadState(plan.LocalPaths("a.csv", "b.csv")...))
//	if res.Outcome == table.OutcomeFellBack {
//	    log.Warn(res.Warning)
//	}
//
// # Write nodes
//
// [Service.WriteNode] takes a [WriteState] and a named table set. One table
// becomes one file; several become a workbook with a sheet each (xlsx) or a
// zip archive with a file each. The file name carries the service clock's
// timestamp when the user left it blank.
//
// # Concurrency
//
// Evaluations hold whole tables in memory, so they run under an
// [EvalLimiter]. Callers that cannot get a slot within the wait time get
// [ErrTooManyEvaluations].
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// See error_messages.go for the code reference.
package core
