package engine

import (
	"fmt"
	"math/big"
)

// Artifact ids referenced by the default plan.
const (
	ArtifactProxyAdmin  = "ProxyAdmin"
	ArtifactVault       = "Vault"
	ArtifactFeeApprover = "FeeApprover"
	ArtifactRouter      = "Router"
	ArtifactNFTPool     = "NFTPool"
	ArtifactToken       = "Token"
)

// PairSignature is the factory function resolving a trading pair.
const PairSignature = "getPair(address,address)"

// ArgKind selects how an argument is resolved at execution time.
type ArgKind string

const (
	ArgRole         ArgKind = "role"
	ArgExternal     ArgKind = "external"
	ArgBaseCurrency ArgKind = "base-currency"
	ArgLiteral      ArgKind = "literal"
	ArgQueryResult  ArgKind = "query-result"
)

// Arg is a step argument resolved against the record, the externals and the
// network profile.
type Arg struct {
	Kind  ArgKind
	Role  Role
	Name  string
	Value any
}

// RoleAddr is the deployed address of role.
func RoleAddr(role Role) Arg { return Arg{Kind: ArgRole, Role: role} }

// External is the address of an external collaborator.
func External(name string) Arg { return Arg{Kind: ArgExternal, Name: name} }

// BaseCurrency is the network's wrapped base currency.
func BaseCurrency() Arg { return Arg{Kind: ArgBaseCurrency} }

// Literal is a fixed value.
func Literal(v any) Arg { return Arg{Kind: ArgLiteral, Value: v} }

// QueryResult is the address returned by the step's query.
func QueryResult() Arg { return Arg{Kind: ArgQueryResult} }

func (a Arg) String() string {
	switch a.Kind {
	case ArgRole:
		return "<" + string(a.Role) + ">"
	case ArgExternal:
		return "$" + a.Name
	case ArgBaseCurrency:
		return "$base_currency"
	case ArgQueryResult:
		return "<query>"
	default:
		return fmt.Sprint(a.Value)
	}
}

// Query is a read-only call whose result feeds a configure step.
type Query struct {
	Target    Arg
	Signature string
	Args      []Arg
}

// Predicate reports whether a step is complete for a record.
type Predicate func(r *Record) bool

// Deployed holds once role has an address.
func Deployed(role Role) Predicate {
	return func(r *Record) bool {
		_, ok := r.Address(role)
		return ok
	}
}

// Initialized holds once role is marked initialized.
func Initialized(role Role) Predicate {
	return func(r *Record) bool {
		return r.Initialized(role)
	}
}

// Step is one entry of the fixed deployment sequence.
type Step struct {
	Order int
	Name  string
	Role  Role
	Kind  StepKind

	// Artifact provides the bytecode of deployments and the interface of calls.
	Artifact string

	// Logic is the logic role a proxy fronts.
	Logic Role

	// Target is the contract a call goes to.
	Target Arg

	Method string
	Args   []Arg
	Query  *Query

	Done Predicate
}

// Summary returns the reportable identity of the step.
func (s *Step) Summary() *StepSummary {
	return &StepSummary{
		Order:    s.Order,
		Name:     s.Name,
		Role:     s.Role,
		Kind:     s.Kind,
		Artifact: s.Artifact,
		Method:   s.Method,
	}
}

// Dependencies returns the roles whose addresses the step consumes.
func (s *Step) Dependencies() []Role {
	var deps []Role
	add := func(a Arg) {
		if a.Kind == ArgRole {
			deps = append(deps, a.Role)
		}
	}

	if s.Kind == StepKindDeployProxy {
		deps = append(deps, s.Logic, RoleProxyAdmin)
	}
	add(s.Target)
	for _, a := range s.Args {
		add(a)
	}
	if s.Query != nil {
		add(s.Query.Target)
		for _, a := range s.Query.Args {
			add(a)
		}
	}
	return deps
}

// Externals returns the names of the external addresses the step consumes.
func (s *Step) Externals() []string {
	var names []string
	add := func(a Arg) {
		if a.Kind == ArgExternal {
			names = append(names, a.Name)
		}
	}
	add(s.Target)
	for _, a := range s.Args {
		add(a)
	}
	if s.Query != nil {
		add(s.Query.Target)
		for _, a := range s.Query.Args {
			add(a)
		}
	}
	return names
}

func deployStep(order int, role Role, artifactID string) Step {
	return Step{
		Order:    order,
		Name:     string(role),
		Role:     role,
		Kind:     StepKindDeploy,
		Artifact: artifactID,
		Done:     Deployed(role),
	}
}

func proxyStep(order int, role, logic Role) Step {
	return Step{
		Order:    order,
		Name:     string(role),
		Role:     role,
		Kind:     StepKindDeployProxy,
		Artifact: ProxyArtifact,
		Logic:    logic,
		Done:     Deployed(role),
	}
}

func initStep(order int, name string, proxy Role, artifactID string, args ...Arg) Step {
	return Step{
		Order:    order,
		Name:     name,
		Role:     proxy,
		Kind:     StepKindInitialize,
		Artifact: artifactID,
		Target:   RoleAddr(proxy),
		Method:   "initialize",
		Args:     args,
		Done:     Initialized(proxy),
	}
}

func setterStep(order int, role Role, method string, args ...Arg) Step {
	return Step{
		Order:    order,
		Name:     string(role),
		Role:     role,
		Kind:     StepKindSetter,
		Artifact: ArtifactToken,
		Target:   External(ExternalToken),
		Method:   method,
		Args:     args,
		Done:     Initialized(role),
	}
}

// DefaultPlan returns the fixed deployment sequence. Calls on proxied
// contracts go to the proxy address using the logic contract's interface.
func DefaultPlan() []Step {
	return []Step{
		deployStep(1, RoleProxyAdmin, ArtifactProxyAdmin),

		deployStep(2, RoleVaultLogic, ArtifactVault),
		proxyStep(3, RoleVaultProxy, RoleVaultLogic),

		deployStep(4, RoleFeeApproverLogic, ArtifactFeeApprover),
		proxyStep(5, RoleFeeApproverProxy, RoleFeeApproverLogic),

		deployStep(6, RoleRouterLogic, ArtifactRouter),
		proxyStep(7, RoleRouterProxy, RoleRouterLogic),

		deployStep(8, RoleNFTPoolLogic, ArtifactNFTPool),
		proxyStep(9, RoleNFTPoolProxy, RoleNFTPoolLogic),

		initStep(10, "vault-init", RoleVaultProxy, ArtifactVault,
			External(ExternalToken), RoleAddr(RoleNFTPoolProxy), External(ExternalDev), External(ExternalDev)),

		initStep(11, "fee-approver-init", RoleFeeApproverProxy, ArtifactFeeApprover,
			External(ExternalToken), BaseCurrency(), External(ExternalPairFactory)),

		setterStep(12, RoleTokenTransferChecker, "setShouldTransferChecker", RoleAddr(RoleFeeApproverProxy)),
		setterStep(13, RoleTokenFeeDistributor, "setFeeDistributor", External(ExternalDev)),

		initStep(14, "router-init", RoleRouterProxy, ArtifactRouter,
			External(ExternalToken), BaseCurrency(), External(ExternalPairFactory),
			RoleAddr(RoleFeeApproverProxy), RoleAddr(RoleVaultProxy)),

		initStep(15, "nft-pool-init", RoleNFTPoolProxy, ArtifactNFTPool,
			External(ExternalNFT), RoleAddr(RoleVaultProxy), External(ExternalDev)),

		{
			Order:    16,
			Name:     string(RoleVaultPool),
			Role:     RoleVaultPool,
			Kind:     StepKindConfigure,
			Artifact: ArtifactVault,
			Target:   RoleAddr(RoleVaultProxy),
			Method:   "add",
			Args:     []Arg{Literal(big.NewInt(100)), QueryResult(), Literal(true), Literal(true)},
			Query: &Query{
				Target:    External(ExternalPairFactory),
				Signature: PairSignature,
				Args:      []Arg{BaseCurrency(), External(ExternalToken)},
			},
			Done: Initialized(RoleVaultPool),
		},
	}
}

// ValidatePlan checks that orders increase, names are unique and every
// dependency is produced by an earlier deployment step.
func ValidatePlan(steps []Step) error {
	if len(steps) == 0 {
		return NewPermanentError("invalid plan", fmt.Errorf("no steps")).WithCode(ErrCodeInvalidPlan)
	}

	produced := make(map[Role]bool)
	names := make(map[string]bool)
	last := 0

	for i := range steps {
		s := &steps[i]
		fail := func(format string, args ...any) error {
			return NewPermanentError("invalid plan", fmt.Errorf(format, args...)).
				WithCode(ErrCodeInvalidPlan).
				WithStep(s.Name)
		}

		if err := s.Kind.Validate(); err != nil {
			return fail("%v", err)
		}
		if s.Done == nil {
			return fail("step has no completion predicate")
		}
		if s.Order <= last {
			return fail("order %d does not follow %d", s.Order, last)
		}
		last = s.Order
		if names[s.Name] {
			return fail("duplicate step name")
		}
		names[s.Name] = true

		if !s.Kind.IsDeployment() && s.Method == "" {
			return fail("call step has no method")
		}
		if s.Kind == StepKindConfigure && s.Query == nil {
			return fail("configure step has no query")
		}

		for _, dep := range s.Dependencies() {
			if !produced[dep] {
				return fail("depends on %s which no earlier step deploys", dep)
			}
		}

		if s.Kind.IsDeployment() {
			produced[s.Role] = true
		}
	}
	return nil
}
