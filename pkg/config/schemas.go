package config

import (
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry(ctx *cue.Context) *SchemaRegistry {
	if ctx == nil {
		ctx = cuecontext.New()
	}
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema(SchemaConfig, builtinConfigSchema); err != nil {
		// The built-in schema is a constant; failing to compile it is a bug.
		panic(err)
	}

	return sr
}

// SchemaConfig is the name of the built-in configuration schema.
const SchemaConfig = "config"

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Definition returns the definition def (e.g. "#Config") of a schema.
func (sr *SchemaRegistry) Definition(name, def string) (cue.Value, error) {
	schema, ok := sr.GetSchema(name)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", name)
	}
	v := schema.LookupPath(cue.ParsePath(def))
	if !v.Exists() {
		return cue.Value{}, fmt.Errorf("schema %s has no definition %s", name, def)
	}
	return v, nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema returns the source of the built-in configuration schema.
func Schema() string {
	return builtinConfigSchema
}

const builtinConfigSchema = `
#Address:  =~"^0x[0-9a-fA-F]{40}$"
#Duration: =~"^(0|([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+)$"
#EnvName:  =~"^[A-Za-z_][A-Za-z0-9_]*$"

#Config: {
	// Network selects the profile. It may also come from CHAINSTAGE_NETWORK.
	network?: string

	// Endpoint override.
	rpc_url?: string

	artifacts: {
		dir:    string | *"artifacts"
		files?: {[string]: string}
	}

	// Collaborators deployed outside the plan.
	addresses?: {
		token?:        #Address
		nft?:          #Address
		dev?:          #Address
		pair_factory?: #Address
	}

	signer?: {
		key_env?:      #EnvName
		keystore?:     string
		password_env?: #EnvName
	}

	record: {
		backend: *"file" | "sqlite"
		path:    string | *"deployment.yaml"
	}

	confirmation?: {
		timeout?:       #Duration
		poll_interval?: #Duration
	}

	// Fee overrides in gwei.
	gas?: {
		fee_cap?: number & >=0
		tip_cap?: number & >=0
	}

	policy?: {
		files?: [...string]
	}

	verify_dependencies: bool | *false

	telemetry?: {
		service_name?:    string
		service_version?: string
		environment?:     string
		logging?: {
			level?:         "trace" | "debug" | "info" | "warn" | "error" | "fatal"
			format?:        "console" | "json"
			output?:        string
			enable_caller?: bool
			time_format?:   "unix" | "unixms" | "rfc3339"
		}
		tracing?: {
			enabled?:        bool
			exporter?:       "otlp" | "stdout" | "none"
			endpoint?:       string
			sampling_rate?:  number & >=0 & <=1
			export_timeout?: #Duration
			headers?: {[string]: string}
			insecure?: bool
		}
		metrics?: {
			enabled?:         bool
			namespace?:       =~"^[a-zA-Z_][a-zA-Z0-9_]*$"
			textfile_path?:   string
			pushgateway_url?: string
			push_job?:        string
			buckets?: [...number]
		}
	}
}
`
