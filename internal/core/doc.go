// Package core reconciles the OS version image catalog against the
// destination table.
//
// This package holds the domain logic independent of any transport. The
// catalog fetcher, the Kusto and Postgres stores and the ops server plug in
// through the [CandidateSource] and [TableStore] interfaces.
//
// # Run Lifecycle
//
// A run (see [Service.Run]) is a single pass:
//
//  1. Collect candidate [Record]s from every configured environment
//  2. Read every persisted row from the destination table
//  3. [Reconcile] the two into a [Diff]
//  4. [PlanWrite] turns the diff into a [WritePlan] (skip, append or replace)
//  5. Apply the plan and compare the reported row count to the plan
//
// Runs hold no state between cycles. Every run recomputes the diff from the
// live catalog and the live table, so a failed write is repaired by the next
// run.
//
// # Append vs Replace
//
// The destination only supports appending rows or replacing the whole table.
// When every persisted row is still present in the catalog the missing rows
// are appended. When any persisted row is gone the full candidate set is
// written with a replace. A replace with zero rows is refused with
// [ErrEmptyReplace] unless explicitly allowed.
//
// # Error Handling
//
// Failures are classified with [MapError]. Each class has a short code:
//
//   - FETCH001, CAT001, READ001: run aborted, returned as an error
//   - PLAN001: empty replace refused, nothing written
//   - WRITE001, WRITE002: write problems, recorded in the run result only
//   - RUN001: another run is executing
//
// # Scheduling
//
// [Service.StartScheduler] repeats runs on a fixed interval until its context
// is cancelled. Overlapping runs are rejected with [ErrRunInProgress].
package core
