package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/chainstage/pkg/ledger"
)

const tracerName = "github.com/openfroyo/chainstage/pkg/engine"

// Options configures an Orchestrator. Everything but Externals is optional.
type Options struct {
	// Steps overrides DefaultPlan.
	Steps []Step

	// Externals are the collaborator addresses steps reference.
	Externals Externals

	// Policy vets every submission before it is signed.
	Policy PolicyGate

	// Journal persists in-flight transactions across invocations.
	Journal PendingJournal

	// Events receives the run timeline.
	Events EventPublisher

	// Metrics receives step and run measurements.
	Metrics MetricsRecorder

	// Tracer overrides the global otel tracer.
	Tracer trace.Tracer

	// VerifyDependencies checks that every dependency address has code
	// before submitting.
	VerifyDependencies bool

	Logger zerolog.Logger
}

// Orchestrator drives the step table: it fast-forwards through satisfied
// steps, executes the first unsatisfied one and halts. An Orchestrator runs
// one invocation at a time.
type Orchestrator struct {
	ledger    Ledger
	artifacts ArtifactSource
	steps     []Step
	opts      Options
	deployer  *Deployer
	invoker   *Invoker
	tracer    trace.Tracer
	logger    zerolog.Logger

	runID string
}

// New validates the plan and creates an orchestrator.
func New(l Ledger, artifacts ArtifactSource, opts Options) (*Orchestrator, error) {
	if l == nil {
		return nil, errors.New("ledger is required")
	}
	if artifacts == nil {
		return nil, errors.New("artifact source is required")
	}

	steps := opts.Steps
	if steps == nil {
		steps = DefaultPlan()
	}
	if err := ValidatePlan(steps); err != nil {
		return nil, err
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	logger := opts.Logger.With().Str("component", "orchestrator").Logger()

	o := &Orchestrator{
		ledger:    l,
		artifacts: artifacts,
		steps:     steps,
		opts:      opts,
		deployer:  NewDeployer(l, opts.Journal, opts.Logger),
		invoker:   NewInvoker(l, opts.Journal, opts.Logger),
		tracer:    tracer,
		logger:    logger,
	}
	o.deployer.onSubmitted = o.submitted
	o.invoker.onSubmitted = o.submitted
	return o, nil
}

// Steps returns the plan the orchestrator drives.
func (o *Orchestrator) Steps() []Step {
	return o.steps
}

// Status evaluates the plan against record without side effects.
func (o *Orchestrator) Status(record *Record) []StepStatus {
	return Evaluate(o.steps, record, o.opts.Externals)
}

// Evaluate reports, for every step, whether it is done, the resume point or
// still pending, and which inputs it would miss if executed now.
func Evaluate(steps []Step, record *Record, externals Externals) []StepStatus {
	out := make([]StepStatus, 0, len(steps))
	foundNext := false

	for i := range steps {
		s := &steps[i]
		st := StepStatus{Step: *s.Summary(), State: StepStatePending}

		switch {
		case s.Done(record):
			st.State = StepStateDone
		case !foundNext:
			st.State = StepStateNext
			foundNext = true
		}

		if st.State != StepStateDone {
			for _, dep := range s.Dependencies() {
				if _, ok := record.Address(dep); !ok {
					st.Missing = append(st.Missing, string(dep))
				}
			}
			for _, name := range s.Externals() {
				if _, ok := externals.Lookup(name); !ok {
					st.Missing = append(st.Missing, "$"+name)
				}
			}
		}
		out = append(out, st)
	}
	return out
}

// Next returns the first step whose predicate does not hold, or nil.
func (o *Orchestrator) Next(record *Record) *Step {
	for i := range o.steps {
		if !o.steps[i].Done(record) {
			return &o.steps[i]
		}
	}
	return nil
}

// Run performs one invocation. The record is read, never modified: the
// change produced by an applied step is returned in Report.Update. On
// failure both the report and the classified error are returned.
func (o *Orchestrator) Run(ctx context.Context, record *Record) (*Report, error) {
	start := time.Now()
	network := o.ledger.Network()
	o.runID = uuid.NewString()

	ctx, span := o.tracer.Start(ctx, "orchestrator.run", trace.WithAttributes(
		attribute.String("run.id", o.runID),
		attribute.String("network", string(network.ID)),
	))
	defer span.End()

	logger := o.logger.With().Str("run_id", o.runID).Logger()
	report := &Report{
		RunID:     o.runID,
		Network:   string(network.ID),
		StartedAt: start,
	}

	o.publish(ctx, &Event{
		Type:    EventTypeRunStarted,
		Message: "Run started",
		Details: map[string]interface{}{"network": string(network.ID), "from": o.ledger.From().Hex()},
	})

	snapshot := record.Clone()

	for i := range o.steps {
		step := &o.steps[i]
		if step.Done(snapshot) {
			report.Skipped++
			logger.Debug().Int("step", step.Order).Str("name", step.Name).Msg("Step already complete")
			continue
		}

		report.Step = step.Summary()
		update, receipt, err := o.execute(ctx, step, snapshot, logger)
		report.Duration = time.Since(start)

		if err != nil {
			var ee *EngineError
			errors.As(err, &ee)
			report.Outcome = OutcomeFailed
			report.Error = ee
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.finish(ctx, report, logger)
			return report, err
		}

		report.Outcome = OutcomeApplied
		report.Update = update
		report.Receipt = receipt
		span.SetStatus(codes.Ok, "")
		o.finish(ctx, report, logger)
		return report, nil
	}

	report.Outcome = OutcomeComplete
	report.Duration = time.Since(start)
	span.SetStatus(codes.Ok, "")
	o.finish(ctx, report, logger)
	return report, nil
}

func (o *Orchestrator) finish(ctx context.Context, report *Report, logger zerolog.Logger) {
	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordRun(report.Network, string(report.Outcome), report.Duration)
	}

	ev := &Event{
		Type:    EventTypeRunCompleted,
		Message: "Run " + string(report.Outcome),
		Details: map[string]interface{}{"outcome": string(report.Outcome), "skipped": report.Skipped},
	}
	if report.Outcome == OutcomeFailed {
		ev.Type = EventTypeRunFailed
	}
	if report.Step != nil {
		ev.Step = report.Step.Name
		ev.Role = report.Step.Role
	}
	o.publish(ctx, ev)

	logger.Info().
		Str("outcome", string(report.Outcome)).
		Int("skipped", report.Skipped).
		Dur("duration", report.Duration).
		Msg("Run finished")
}

func (o *Orchestrator) execute(ctx context.Context, step *Step, record *Record, logger zerolog.Logger) (*Update, *ledger.Receipt, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "step."+step.Name, trace.WithAttributes(
		attribute.Int("step.order", step.Order),
		attribute.String("step.role", string(step.Role)),
		attribute.String("step.kind", string(step.Kind)),
	))
	defer span.End()

	log := logger.With().
		Int("step", step.Order).
		Str("name", step.Name).
		Str("role", string(step.Role)).
		Logger()

	log.Info().Str("kind", string(step.Kind)).Str("artifact", step.Artifact).Msg("Step starting")
	o.publish(ctx, &Event{
		Type:    EventTypeStepStarted,
		Step:    step.Name,
		Role:    step.Role,
		Message: "Step starting",
		Details: map[string]interface{}{"order": step.Order, "kind": string(step.Kind)},
	})

	update, receipt, err := o.apply(ctx, step, record)
	duration := time.Since(start)

	if err != nil {
		code := ErrCodeTransactionReverted
		if step.Kind.IsDeployment() {
			code = ErrCodeDeploymentFailed
		}
		ee := classify(step.Role, err, code)
		ee.WithStep(step.Name)

		span.RecordError(ee)
		span.SetStatus(codes.Error, ee.Code)
		log.Error().
			Err(ee.Err).
			Str("class", string(ee.Class)).
			Str("code", ee.Code).
			Dur("duration", duration).
			Msg("Step failed")

		details := map[string]interface{}{"code": ee.Code, "class": string(ee.Class)}
		for k, v := range ee.Details {
			details[k] = v
		}
		o.publish(ctx, &Event{
			Type:    EventTypeStepFailed,
			Step:    step.Name,
			Role:    step.Role,
			Message: ee.Error(),
			Details: details,
		})
		if o.opts.Metrics != nil {
			o.opts.Metrics.RecordStep(step.Name, string(step.Kind), string(OutcomeFailed), duration)
		}
		return nil, nil, ee
	}

	ev := log.Info().
		Str("tx", receipt.TxHash.Hex()).
		Uint64("block", receipt.BlockNumber).
		Dur("duration", duration)
	details := map[string]interface{}{
		"tx_hash":  receipt.TxHash.Hex(),
		"block":    receipt.BlockNumber,
		"gas_used": receipt.GasUsed,
	}
	if update.Address != nil {
		ev = ev.Str("address", update.Address.Hex())
		details["address"] = update.Address.Hex()
	}
	ev.Msg("Step succeeded")

	o.publish(ctx, &Event{
		Type:    EventTypeStepSucceeded,
		Step:    step.Name,
		Role:    step.Role,
		Message: "Step succeeded",
		Details: details,
	})
	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordStep(step.Name, string(step.Kind), string(OutcomeApplied), duration)
	}
	return update, receipt, nil
}

func (o *Orchestrator) apply(ctx context.Context, step *Step, record *Record) (*Update, *ledger.Receipt, error) {
	switch step.Kind {
	case StepKindDeploy, StepKindDeployProxy:
		var args []any
		if step.Kind == StepKindDeployProxy {
			var err error
			args, err = BuildProxyArgs(optional(record, step.Logic), optional(record, RoleProxyAdmin))
			if err != nil {
				return nil, nil, err
			}
		}

		if err := o.verifyDependencies(ctx, step, record, nil); err != nil {
			return nil, nil, err
		}

		art, err := o.artifacts.Load(ctx, step.Artifact)
		if err != nil {
			return nil, nil, err
		}
		if err := o.gate(ctx, step, nil, args); err != nil {
			return nil, nil, err
		}

		addr, receipt, err := o.deployer.Deploy(ctx, step.Role, art, args...)
		if err != nil {
			return nil, nil, err
		}
		return &Update{Role: step.Role, Address: &addr}, receipt, nil

	default:
		target, err := o.resolveAddress(record, step, step.Target)
		if err != nil {
			return nil, nil, err
		}

		var queried common.Address
		if step.Query != nil {
			queried, err = o.query(ctx, record, step)
			if err != nil {
				return nil, nil, err
			}
		}

		args := make([]any, 0, len(step.Args))
		for _, a := range step.Args {
			v, err := o.resolve(record, step, a, queried)
			if err != nil {
				return nil, nil, err
			}
			args = append(args, v)
		}

		if err := o.verifyDependencies(ctx, step, record, &target); err != nil {
			return nil, nil, err
		}

		art, err := o.artifacts.Load(ctx, step.Artifact)
		if err != nil {
			return nil, nil, err
		}
		if !art.HasMethod(step.Method) {
			return nil, nil, NewPermanentError("artifact malformed",
				fmt.Errorf("%s declares no method %s", step.Artifact, step.Method)).
				WithCode(ErrCodeArtifactMalformed)
		}
		if err := o.gate(ctx, step, &target, args); err != nil {
			return nil, nil, err
		}

		receipt, err := o.invoker.Invoke(ctx, step.Role, target, art.ABI, step.Method, args...)
		if err != nil {
			return nil, nil, err
		}

		update := &Update{Role: step.Role, Initialized: true}
		if step.Kind == StepKindConfigure {
			update.Address = &queried
		}
		return update, receipt, nil
	}
}

func optional(record *Record, role Role) *common.Address {
	addr, ok := record.Address(role)
	if !ok {
		return nil
	}
	return &addr
}

func (o *Orchestrator) resolve(record *Record, step *Step, a Arg, queried common.Address) (any, error) {
	switch a.Kind {
	case ArgRole, ArgExternal, ArgBaseCurrency:
		return o.resolveAddress(record, step, a)
	case ArgQueryResult:
		if queried == (common.Address{}) {
			return nil, missingDependency(step.Role, "step %s has no query result", step.Name)
		}
		return queried, nil
	case ArgLiteral:
		return a.Value, nil
	default:
		return nil, fmt.Errorf("unknown argument kind %q", a.Kind)
	}
}

func (o *Orchestrator) resolveAddress(record *Record, step *Step, a Arg) (common.Address, error) {
	switch a.Kind {
	case ArgRole:
		addr, ok := record.Address(a.Role)
		if !ok {
			return common.Address{}, missingDependency(step.Role, "step %s requires the address of %s", step.Name, a.Role)
		}
		return addr, nil
	case ArgExternal:
		addr, ok := o.opts.Externals.Lookup(a.Name)
		if !ok {
			return common.Address{}, missingDependency(step.Role, "step %s requires external address %q", step.Name, a.Name)
		}
		return addr, nil
	case ArgBaseCurrency:
		return o.ledger.Network().BaseCurrency, nil
	default:
		return common.Address{}, fmt.Errorf("argument %s is not an address", a)
	}
}

func (o *Orchestrator) query(ctx context.Context, record *Record, step *Step) (common.Address, error) {
	q := step.Query
	to, err := o.resolveAddress(record, step, q.Target)
	if err != nil {
		return common.Address{}, err
	}

	args := make([]any, 0, len(q.Args))
	for _, a := range q.Args {
		v, err := o.resolve(record, step, a, common.Address{})
		if err != nil {
			return common.Address{}, err
		}
		args = append(args, v)
	}

	addr, err := o.ledger.QueryAddress(ctx, to, q.Signature, args...)
	if err != nil {
		return common.Address{}, err
	}
	if addr == (common.Address{}) {
		return common.Address{}, missingDependency(step.Role, "%s on %s returned the zero address", q.Signature, to.Hex())
	}

	o.logger.Info().
		Str("step", step.Name).
		Str("query", q.Signature).
		Str("result", addr.Hex()).
		Msg("Query resolved")
	return addr, nil
}

// verifyDependencies checks that every role dependency, and the call target,
// carries code on the ledger.
func (o *Orchestrator) verifyDependencies(ctx context.Context, step *Step, record *Record, target *common.Address) error {
	if !o.opts.VerifyDependencies {
		return nil
	}

	check := func(label string, addr common.Address) error {
		code, err := o.ledger.CodeAt(ctx, addr)
		if err != nil {
			return err
		}
		if len(code) == 0 {
			return missingDependency(step.Role, "%s at %s has no code", label, addr.Hex())
		}
		return nil
	}

	for _, dep := range step.Dependencies() {
		addr, ok := record.Address(dep)
		if !ok {
			return missingDependency(step.Role, "step %s requires the address of %s", step.Name, dep)
		}
		if err := check(string(dep), addr); err != nil {
			return err
		}
	}
	if target != nil && step.Target.Kind == ArgExternal {
		if err := check(step.Target.Name, *target); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) gate(ctx context.Context, step *Step, target *common.Address, args []any) error {
	if o.opts.Policy == nil {
		return nil
	}

	network := o.ledger.Network()
	sub := &Submission{
		Network:  string(network.ID),
		ChainID:  network.ChainID,
		Mainnet:  network.IsMainnet(),
		From:     o.ledger.From().Hex(),
		Step:     step.Name,
		Order:    step.Order,
		Role:     string(step.Role),
		Kind:     string(step.Kind),
		Artifact: step.Artifact,
		Method:   step.Method,
		Args:     make([]string, 0, len(args)),
	}
	if target != nil {
		sub.Target = target.Hex()
	}
	for _, a := range args {
		sub.Args = append(sub.Args, FormatArg(a))
	}

	result, err := o.opts.Policy.Evaluate(ctx, sub)
	if err != nil {
		return NewPermanentError("policy evaluation failed", err).WithCode(ErrCodePolicyDenied)
	}
	if result.Allowed {
		return nil
	}

	msgs := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		msgs = append(msgs, v.Policy+": "+v.Message)
	}
	return NewPermanentError("policy denied", errors.New(strings.Join(msgs, "; "))).
		WithCode(ErrCodePolicyDenied).
		WithDetail("violations", result.Violations)
}

func (o *Orchestrator) submitted(ctx context.Context, tx *ledger.PendingTransaction) {
	o.publish(ctx, &Event{
		Type:    EventTypeStepSubmitted,
		Role:    Role(tx.Role),
		Message: "Transaction submitted",
		Details: map[string]interface{}{"tx_hash": tx.Hash.Hex(), "nonce": tx.Nonce},
	})
}

func (o *Orchestrator) publish(ctx context.Context, ev *Event) {
	if o.opts.Events == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.RunID = o.runID
	ev.Timestamp = time.Now()
	ev.Level = ev.Type.Severity()
	if err := o.opts.Events.Publish(ctx, ev); err != nil {
		o.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("Failed to publish event")
	}
}

// Verification is the on-ledger check of one recorded address.
type Verification struct {
	Role    Role           `json:"role"`
	Address common.Address `json:"address"`
	HasCode bool           `json:"has_code"`
}

// Verify checks that every recorded address carries code.
func (o *Orchestrator) Verify(ctx context.Context, record *Record) ([]Verification, error) {
	var out []Verification
	for _, role := range record.Roles() {
		addr, ok := record.Address(role)
		if !ok {
			continue
		}
		code, err := o.ledger.CodeAt(ctx, addr)
		if err != nil {
			return nil, err
		}
		out = append(out, Verification{Role: role, Address: addr, HasCode: len(code) > 0})
	}
	return out, nil
}

// FormatArg renders a call argument for reports and policy input.
func FormatArg(v any) string {
	switch t := v.(type) {
	case common.Address:
		return t.Hex()
	case *common.Address:
		return t.Hex()
	case []byte:
		return "0x" + hex.EncodeToString(t)
	case *big.Int:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case string:
		return t
	default:
		return fmt.Sprint(v)
	}
}
