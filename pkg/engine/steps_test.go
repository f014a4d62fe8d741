package engine

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
)

func TestDefaultPlanIsValid(t *testing.T) {
	plan := DefaultPlan()
	if err := ValidatePlan(plan); err != nil {
		t.Fatalf("ValidatePlan() error = %v", err)
	}
	if len(plan) != 16 {
		t.Fatalf("len(plan) = %d, want 16", len(plan))
	}

	var names []string
	for _, s := range plan {
		names = append(names, s.Name)
	}
	want := []string{
		"proxy-admin",
		"vault-logic", "vault-proxy",
		"fee-approver-logic", "fee-approver-proxy",
		"router-logic", "router-proxy",
		"nft-pool-logic", "nft-pool-proxy",
		"vault-init", "fee-approver-init",
		"token-transfer-checker", "token-fee-distributor",
		"router-init", "nft-pool-init",
		"vault-pool",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("plan order mismatch (-want +got):\n%s", diff)
	}
}

func TestProxyStepsFollowLogicAndInitFollowsProxy(t *testing.T) {
	plan := DefaultPlan()
	position := make(map[Role]int)
	for i, s := range plan {
		if s.Kind.IsDeployment() {
			position[s.Role] = i
		}
	}

	for i, s := range plan {
		switch s.Kind {
		case StepKindDeployProxy:
			if position[s.Logic] >= i {
				t.Errorf("%s precedes its logic %s", s.Name, s.Logic)
			}
		case StepKindInitialize:
			if position[s.Role] >= i {
				t.Errorf("%s precedes the deployment of %s", s.Name, s.Role)
			}
		}
	}
}

func TestStepDependencies(t *testing.T) {
	plan := DefaultPlan()
	tests := []struct {
		index int
		want  []Role
	}{
		{0, nil},
		{2, []Role{RoleVaultLogic, RoleProxyAdmin}},
		{9, []Role{RoleVaultProxy, RoleNFTPoolProxy}},
		{11, []Role{RoleFeeApproverProxy}},
		{13, []Role{RoleRouterProxy, RoleFeeApproverProxy, RoleVaultProxy}},
		{15, []Role{RoleVaultProxy}},
	}
	for _, tt := range tests {
		t.Run(plan[tt.index].Name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, plan[tt.index].Dependencies()); diff != "" {
				t.Errorf("Dependencies() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidatePlanRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]Step) []Step
	}{
		{"empty", func([]Step) []Step { return nil }},
		{"proxy before logic", func(s []Step) []Step {
			s[1], s[2] = s[2], s[1]
			s[1].Order, s[2].Order = 2, 3
			return s
		}},
		{"duplicate name", func(s []Step) []Step {
			s[2].Name = s[1].Name
			return s
		}},
		{"no predicate", func(s []Step) []Step {
			s[0].Done = nil
			return s
		}},
		{"bad kind", func(s []Step) []Step {
			s[0].Kind = "migrate"
			return s
		}},
		{"call without method", func(s []Step) []Step {
			s[9].Method = ""
			return s
		}},
		{"configure without query", func(s []Step) []Step {
			s[15].Query = nil
			return s
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePlan(tt.mutate(DefaultPlan()))
			if !HasCode(err, ErrCodeInvalidPlan) {
				t.Errorf("ValidatePlan() error = %v, want INVALID_PLAN", err)
			}
		})
	}
}

func TestBuildProxyArgs(t *testing.T) {
	logic := common.HexToAddress("0x1111111111111111111111111111111111111111")
	admin := common.HexToAddress("0x2222222222222222222222222222222222222222")

	args, err := BuildProxyArgs(&logic, &admin)
	if err != nil {
		t.Fatalf("BuildProxyArgs() error = %v", err)
	}
	if diff := cmp.Diff([]any{logic, admin, []byte{}}, args); diff != "" {
		t.Errorf("BuildProxyArgs() mismatch (-want +got):\n%s", diff)
	}

	zero := common.Address{}
	for name, pair := range map[string][2]*common.Address{
		"no logic":   {nil, &admin},
		"no admin":   {&logic, nil},
		"zero logic": {&zero, &admin},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := BuildProxyArgs(pair[0], pair[1])
			if !HasCode(err, ErrCodeMissingDependency) {
				t.Errorf("BuildProxyArgs() error = %v, want MISSING_DEPENDENCY", err)
			}
		})
	}
}

func TestArgString(t *testing.T) {
	tests := []struct {
		arg  Arg
		want string
	}{
		{RoleAddr(RoleVaultProxy), "<vault-proxy>"},
		{External(ExternalDev), "$dev"},
		{BaseCurrency(), "$base_currency"},
		{QueryResult(), "<query>"},
		{Literal(true), "true"},
	}
	for _, tt := range tests {
		if got := tt.arg.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	base := errors.New("connection refused")
	ee := classify(RoleVaultLogic, base, ErrCodeDeploymentFailed)
	if ee.Code != ErrCodeSubmissionFailed || ee.Class != ErrorClassTransient {
		t.Errorf("classify(rpc error) = %s/%s", ee.Class, ee.Code)
	}
	if !errors.Is(ee, base) {
		t.Error("cause lost")
	}

	again := classify(RoleVaultProxy, ee, ErrCodeTransactionReverted)
	if again != ee || again.Role != RoleVaultLogic {
		t.Error("an EngineError must pass through unchanged")
	}

	if !errors.Is(ee, &EngineError{Class: ErrorClassTransient, Code: ErrCodeSubmissionFailed}) {
		t.Error("errors.Is by class and code failed")
	}
}
