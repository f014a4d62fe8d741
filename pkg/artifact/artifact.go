// Package artifact loads compiled contract bundles (name, bytecode and ABI)
// from an artifact directory and derives their constructor signature.
package artifact

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// NoConstructorArgs is the constructor signature reported for artifacts
// whose ABI carries no constructor entry.
const NoConstructorArgs = "-- No constructor arguments --"

var (
	// ErrNotFound is returned when an identifier does not resolve to a bundle.
	ErrNotFound = errors.New("artifact not found")

	// ErrMalformed is returned when a bundle cannot be parsed into an ABI and bytecode.
	ErrMalformed = errors.New("artifact malformed")
)

// Entry is one raw element of an ABI description, in declaration order.
type Entry struct {
	Type            string  `json:"type"`
	Name            string  `json:"name,omitempty"`
	Inputs          []Param `json:"inputs,omitempty"`
	Outputs         []Param `json:"outputs,omitempty"`
	StateMutability string  `json:"stateMutability,omitempty"`
}

// Param is a named, typed ABI parameter.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Artifact is an immutable, freshly loaded contract bundle.
type Artifact struct {
	// ID is the identifier the artifact was loaded by.
	ID string

	// Name is the contract name declared in the bundle.
	Name string

	// Path is the resolved file the bundle was read from.
	Path string

	// Entries is the interface description in declaration order.
	Entries []Entry

	// ABI is the parsed interface used for argument encoding.
	ABI abi.ABI

	// Bytecode is the creation code. Interface-only bundles have none.
	Bytecode []byte

	// ConstructorSignature is the human readable constructor parameter list.
	ConstructorSignature string
}

// Deployable reports whether the artifact carries creation code.
func (a *Artifact) Deployable() bool {
	return len(a.Bytecode) > 0
}

// Methods returns the method signatures of the interface in declaration order.
func (a *Artifact) Methods() []string {
	var out []string
	for _, e := range a.Entries {
		if e.Type != "function" {
			continue
		}
		out = append(out, renderSignature(e.Name, e.Inputs))
	}
	return out
}

// HasMethod reports whether the interface declares the named method.
func (a *Artifact) HasMethod(name string) bool {
	_, ok := a.ABI.Methods[name]
	return ok
}

// bundle is the on-disk artifact format shared by truffle and hardhat.
type bundle struct {
	ContractName string          `json:"contractName"`
	Bytecode     json.RawMessage `json:"bytecode"`
	ABI          json.RawMessage `json:"abi"`
}

// Loader resolves artifact identifiers against a root directory.
type Loader struct {
	dir   string
	files map[string]string
}

// NewLoader creates a loader rooted at dir. Files maps identifiers to file
// names (relative to dir) that do not follow the <ID>.json convention.
func NewLoader(dir string, files map[string]string) *Loader {
	f := make(map[string]string, len(files))
	for k, v := range files {
		f[k] = v
	}
	return &Loader{dir: dir, files: f}
}

// Dir returns the artifact root directory.
func (l *Loader) Dir() string {
	return l.dir
}

// Load reads and parses the bundle for id. Nothing is cached; every call
// reads the file again.
func (l *Loader) Load(ctx context.Context, id string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := l.resolve(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (%s)", ErrNotFound, id, path)
		}
		return nil, fmt.Errorf("read artifact %s: %w", id, err)
	}

	art, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	art.ID = id
	art.Path = path
	return art, nil
}

// resolve maps an identifier onto a file path. Explicit mappings win, then
// <dir>/<id>.json, then a recursive search for <id>.json (hardhat layout).
func (l *Loader) resolve(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrNotFound)
	}

	if name, ok := l.files[id]; ok {
		return l.join(name), nil
	}

	if strings.HasSuffix(id, ".json") || strings.ContainsRune(id, os.PathSeparator) {
		return l.join(id), nil
	}

	direct := filepath.Join(l.dir, id+".json")
	if _, err := os.Stat(direct); err == nil {
		return direct, nil
	}

	var found string
	walkErr := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && d.Name() == id+".json" && !strings.HasSuffix(path, ".dbg.json") {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, fs.SkipAll) {
		return "", fmt.Errorf("search artifacts for %s: %w", id, walkErr)
	}
	if found == "" {
		return "", fmt.Errorf("%w: %s (searched %s)", ErrNotFound, id, l.dir)
	}
	return found, nil
}

func (l *Loader) join(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(l.dir, name)
}

// Parse decodes a raw artifact bundle.
func Parse(data []byte) (*Artifact, error) {
	var b bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(b.ABI) == 0 {
		return nil, fmt.Errorf("%w: missing abi", ErrMalformed)
	}

	var entries []Entry
	if err := json.Unmarshal(b.ABI, &entries); err != nil {
		return nil, fmt.Errorf("%w: abi is not a list of entries: %v", ErrMalformed, err)
	}

	parsed, err := abi.JSON(bytes.NewReader(b.ABI))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	code, err := decodeBytecode(b.Bytecode)
	if err != nil {
		return nil, err
	}

	ctor, err := constructorSignature(entries)
	if err != nil {
		return nil, err
	}

	return &Artifact{
		Name:                 b.ContractName,
		Entries:              entries,
		ABI:                  parsed,
		Bytecode:             code,
		ConstructorSignature: ctor,
	}, nil
}

// decodeBytecode accepts both the plain hex string form and the foundry
// {"object": "0x..."} form.
func decodeBytecode(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var obj struct {
			Object string `json:"object"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: bytecode is neither a string nor an object", ErrMalformed)
		}
		s = obj.Object
	}

	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, nil
	}
	code, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: bytecode: %v", ErrMalformed, err)
	}
	return code, nil
}

func constructorSignature(entries []Entry) (string, error) {
	var ctor *Entry
	for i := range entries {
		if entries[i].Type != "constructor" {
			continue
		}
		if ctor != nil {
			return "", fmt.Errorf("%w: more than one constructor entry", ErrMalformed)
		}
		ctor = &entries[i]
	}
	if ctor == nil {
		return NoConstructorArgs, nil
	}
	return renderSignature("constructor", ctor.Inputs), nil
}

func renderSignature(name string, params []Param) string {
	parts := make([]string, len(params))
	for i, p := range params {
		if p.Name == "" {
			parts[i] = p.Type
			continue
		}
		parts[i] = p.Type + " " + p.Name
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}
