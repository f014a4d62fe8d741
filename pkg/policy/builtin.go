package policy

// ZeroAddress is the all-zero address as it appears in submission arguments.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		zeroAddressPolicy(),
		mainnetGuardPolicy(),
		signerAsCollaboratorPolicy(),
	}
}

// zeroAddressPolicy rejects any argument or target equal to the zero address.
// A zero address in a constructor or initializer is unrecoverable once the
// call is confirmed.
func zeroAddressPolicy() Policy {
	return Policy{
		Name:        "no-zero-address",
		Description: "Rejects submissions that pass or target the zero address",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"safety"},
		Rego: `package chainstage.policies.zero_address

deny contains violation if {
	some i
	arg := input.submission.args[i]
	lower(arg) == "` + ZeroAddress + `"
	violation := {
		"message": sprintf("argument %d of step %s is the zero address", [i, input.submission.step]),
		"severity": "error",
	}
}

deny contains violation if {
	lower(input.submission.target) == "` + ZeroAddress + `"
	violation := {
		"message": sprintf("step %s targets the zero address", [input.submission.step]),
		"severity": "error",
	}
}
`,
	}
}

// mainnetGuardPolicy requires an explicit opt-in before anything is signed on
// mainnet.
func mainnetGuardPolicy() Policy {
	return Policy{
		Name:        "mainnet-guard",
		Description: "Blocks mainnet submissions unless mainnet was explicitly allowed",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"safety", "network"},
		Rego: `package chainstage.policies.mainnet

deny contains violation if {
	input.submission.mainnet
	not input.context.allow_mainnet
	violation := {
		"message": sprintf("step %s would submit to mainnet (chain %d); pass --allow-mainnet to proceed", [input.submission.step, input.submission.chain_id]),
		"severity": "error",
	}
}
`,
	}
}

// signerAsCollaboratorPolicy warns when the signing account is passed as a
// wiring argument, which usually means a placeholder address was left in the
// configuration.
func signerAsCollaboratorPolicy() Policy {
	return Policy{
		Name:        "signer-as-argument",
		Description: "Warns when the signing account is passed as a call argument",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"configuration"},
		Rego: `package chainstage.policies.signer

deny contains violation if {
	input.submission.kind != "deploy-proxy"
	some i
	arg := input.submission.args[i]
	lower(arg) == lower(input.submission.from)
	violation := {
		"message": sprintf("argument %d of step %s is the signing account %s", [i, input.submission.step, input.submission.from]),
		"severity": "warning",
	}
}
`,
	}
}
