// Package policy gates ledger submissions with Open Policy Agent.
//
// Every transaction the orchestrator is about to sign is described as an
// engine.Submission and evaluated against a set of Rego modules. Each module
// defines a "deny" set; members are strings or objects with "message" and
// "severity" keys. A violation of severity error or critical blocks the
// submission, anything lower is logged and reported.
//
// # Built-in policies
//
//   - no-zero-address: no argument or call target may be the zero address.
//   - mainnet-guard: nothing is signed on mainnet unless Options.AllowMainnet
//     is set (the --allow-mainnet flag).
//   - signer-as-argument: warns when the signing account is passed as a
//     wiring argument.
//
// # Operator policies
//
// Options.Paths names .rego or .json files, or directories holding them. A
// .rego file becomes a policy named after the file; its leading comment is
// the description and a "# severity: warning" line lowers the default error
// severity. Policies use Rego v1 syntax:
//
//	# Refuse to touch the router on this network.
//	package ops.router
//
//	deny contains msg if {
//		input.submission.role == "router-proxy"
//		msg := "router changes are frozen"
//	}
//
// The input document is:
//
//	{
//	  "submission": {"network", "chain_id", "mainnet", "from", "step", "order",
//	                 "role", "kind", "artifact", "target", "method", "args"},
//	  "context":    {"timestamp", "allow_mainnet", "operation"}
//	}
package policy
