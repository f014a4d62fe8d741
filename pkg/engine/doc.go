// Package engine drives the staged deployment of upgradeable contracts.
//
// # Overview
//
// The deployment is a fixed, ordered table of steps (see DefaultPlan). Each
// step names the symbolic role it produces or affects, the action it
// performs and a completion predicate evaluated against a Record:
//
//	1     proxy-admin             deploy ProxyAdmin
//	2-9   <x>-logic, <x>-proxy    deploy logic, then proxy(logic, admin, 0x)
//	10-15 initializers/setters    call the proxy with the logic interface
//	16    vault-pool              resolve the pair, then vault.add(...)
//
// # Invocation model
//
// Run fast-forwards through steps whose predicate holds, executes the first
// one that does not and halts. A single invocation therefore performs at
// most one side-effecting action. The outcome is one of:
//
//   - OutcomeApplied: one step was submitted and confirmed; Report.Update
//     carries the record change.
//   - OutcomeFailed: the step failed; the record change is empty and the
//     next invocation retries the same step from scratch.
//   - OutcomeComplete: every predicate already holds.
//
// The Record passed to Run is never modified. Persisting Report.Update is the
// caller's decision (see pkg/stores).
//
// # Errors
//
// Failures are returned as *EngineError with a class and one of the ErrCode
// constants (MISSING_DEPENDENCY, DEPLOYMENT_FAILED, TRANSACTION_REVERTED,
// CONFIRMATION_TIMEOUT, POLICY_DENIED, ...). Nothing is retried within an
// invocation.
//
// # Example
//
//	orch, err := engine.New(client, loader, engine.Options{
//		Externals: externals,
//		Journal:   store,
//		Logger:    logger,
//	})
//	report, err := orch.Run(ctx, record)
//	if report.Outcome == engine.OutcomeApplied {
//		record.Apply(report.Update)
//	}
package engine
