package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/chainstage/pkg/ledger"
	"github.com/openfroyo/chainstage/pkg/telemetry"
)

// Environment variables overriding the file.
const (
	EnvNetwork = "CHAINSTAGE_NETWORK"
	EnvRPCURL  = "CHAINSTAGE_RPC_URL"
	EnvRecord  = "CHAINSTAGE_RECORD"
)

// Default returns the configuration used when a field is absent.
func Default() *Config {
	tel := telemetry.DefaultConfig()
	tel.Environment = ""

	return &Config{
		Artifacts: ArtifactsConfig{Dir: "artifacts"},
		Record: RecordConfig{
			Backend: BackendFile,
			Path:    "deployment.yaml",
		},
		Telemetry: *tel,
	}
}

// Loader reads configuration files. A file is compiled to CUE (from .cue,
// .yaml/.yml or .json), unified with the built-in #Config schema, decoded
// over Default, overridden from the environment and finally validated.
type Loader struct {
	ctx      *cue.Context
	schemas  *SchemaRegistry
	validate *validator.Validate
	lookup   func(string) (string, bool)
	logger   zerolog.Logger
}

// NewLoader creates a configuration loader.
func NewLoader(logger zerolog.Logger) *Loader {
	ctx := cuecontext.New()

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Loader{
		ctx:      ctx,
		schemas:  NewSchemaRegistry(ctx),
		validate: v,
		lookup:   os.LookupEnv,
		logger:   logger.With().Str("component", "config").Logger(),
	}
}

// Load reads and validates the configuration file at path.
func Load(ctx context.Context, path string) (*Config, error) {
	return NewLoader(zerolog.Nop()).Load(ctx, path)
}

// Load reads and validates the configuration file at path.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := l.Parse(path, data)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	cfg.Source = abs
	cfg.BaseDir = filepath.Dir(abs)

	l.logger.Debug().
		Str("path", path).
		Str("network", cfg.Network).
		Str("record", cfg.Record.Backend).
		Msg("Configuration loaded")

	return cfg, nil
}

// Parse decodes data, whose format is chosen by the extension of name.
func (l *Loader) Parse(name string, data []byte) (*Config, error) {
	val, err := l.compile(name, data)
	if err != nil {
		return nil, err
	}

	schema, err := l.schemas.Definition(SchemaConfig, "#Config")
	if err != nil {
		return nil, err
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Errors: l.convertCUEErrors(name, err)}
	}

	raw, err := unified.MarshalJSON()
	if err != nil {
		return nil, &LoadError{Errors: l.convertCUEErrors(name, err)}
	}

	// JSON is YAML; yaml.v3 decodes duration strings and keeps defaults for
	// absent fields.
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	l.applyEnv(cfg)

	if err := l.Validate(cfg); err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			for i := range le.Errors {
				le.Errors[i].File = name
			}
		}
		return nil, err
	}

	return cfg, nil
}

// compile turns the source into a CUE value.
func (l *Loader) compile(name string, data []byte) (cue.Value, error) {
	var val cue.Value

	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".cue", ".json":
		val = l.ctx.CompileBytes(data, cue.Filename(name))
	case ".yaml", ".yml":
		var doc map[string]interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return cue.Value{}, &LoadError{Errors: []ValidationError{{
				File:    name,
				Message: fmt.Sprintf("failed to parse YAML: %v", err),
			}}}
		}
		if doc == nil {
			doc = map[string]interface{}{}
		}
		val = l.ctx.Encode(doc)
	default:
		return cue.Value{}, fmt.Errorf("unsupported config format %q (want .yaml, .yml, .cue or .json)", ext)
	}

	if err := val.Err(); err != nil {
		return cue.Value{}, &LoadError{Errors: l.convertCUEErrors(name, err)}
	}
	return val, nil
}

// applyEnv overrides file values from the environment.
func (l *Loader) applyEnv(cfg *Config) {
	if v, ok := l.lookup(EnvNetwork); ok && v != "" {
		cfg.Network = v
	}
	if v, ok := l.lookup(EnvRPCURL); ok && v != "" {
		cfg.RPCURL = v
	}
	if v, ok := l.lookup(EnvRecord); ok && v != "" {
		cfg.Record.Path = v
	}
}

// Validate checks struct constraints and cross-field rules the schema cannot
// express.
func (l *Loader) Validate(cfg *Config) error {
	var errs []ValidationError

	if err := l.validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("failed to validate config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, ValidationError{
				Path:    fieldPath(fe.Namespace()),
				Message: describe(fe),
			})
		}
	}

	if cfg.Network != "" {
		if _, err := ledger.Lookup(cfg.Network); err != nil {
			return err
		}
	}

	if cfg.Gas.FeeCap > 0 && cfg.Gas.TipCap > cfg.Gas.FeeCap {
		errs = append(errs, ValidationError{
			Path:    "gas.tip_cap",
			Message: fmt.Sprintf("tip cap %g exceeds fee cap %g", cfg.Gas.TipCap, cfg.Gas.FeeCap),
		})
	}

	if err := cfg.Telemetry.Validate(); err != nil {
		errs = append(errs, ValidationError{Path: "telemetry", Message: err.Error()})
	}

	if len(errs) > 0 {
		return &LoadError{Errors: errs}
	}
	return nil
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// describe renders a validator failure.
func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "eth_addr":
		return fmt.Sprintf("%q is not an address", fe.Value())
	case "oneof":
		return fmt.Sprintf("%v is not one of: %s", fe.Value(), fe.Param())
	case "url":
		return fmt.Sprintf("%q is not a URL", fe.Value())
	case "required_with":
		return fmt.Sprintf("is required with %s", fe.Param())
	case "excluded_with":
		return fmt.Sprintf("cannot be combined with %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	}
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func (l *Loader) convertCUEErrors(name string, err error) []ValidationError {
	var out []ValidationError

	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{
			File:    name,
			Path:    cuePath(e.Path()),
			Message: e.Error(),
		}
		if pos := cueerrors.Positions(e); len(pos) > 0 && pos[0].Filename() == name {
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		out = append(out, ve)
	}

	if len(out) == 0 {
		out = append(out, ValidationError{File: name, Message: err.Error()})
	}
	return out
}

// cuePath joins a CUE error path relative to the config root. Errors raised
// while unifying with the schema are reported under its definition name.
func cuePath(sel []string) string {
	if len(sel) > 0 && strings.HasPrefix(sel[0], "#") {
		sel = sel[1:]
	}
	return strings.Join(sel, ".")
}
