// Package interp is Atlas's embedding API: the Atlas engine type that
// drives the lexer/parser/binder/checker/compiler/optimizer/VM pipeline
// over successive Eval calls, runtime sandboxing configuration, and the
// ToAtlas/FromAtlas host-value conversion surface (§4.10).
package interp

import (
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RuntimeConfig is a clonable bag of sandboxing options. Every setter
// returns a modified copy, matching the "builder-style setters return a new
// config" rule so a shared base config is never mutated out from under a
// caller holding another reference to it.
type RuntimeConfig struct {
	MaxExecutionTime *time.Duration
	MaxMemoryBytes   *uint64
	AllowIO          bool
	AllowNetwork     bool
	Output           io.Writer
}

// DefaultConfig returns the permissive preset: no time or memory ceiling,
// I/O and network both allowed, output to stdout.
func DefaultConfig() RuntimeConfig {
	return RuntimeConfig{AllowIO: true, AllowNetwork: true, Output: os.Stdout}
}

// SandboxedConfig returns the restrictive preset: a 5 second execution
// ceiling, a 10 MB memory ceiling, no I/O, no network, output to stdout.
func SandboxedConfig() RuntimeConfig {
	d := 5 * time.Second
	mem := uint64(10 * 1024 * 1024)
	return RuntimeConfig{
		MaxExecutionTime: &d,
		MaxMemoryBytes:   &mem,
		AllowIO:          false,
		AllowNetwork:     false,
		Output:           os.Stdout,
	}
}

// WithMaxExecutionTime returns a copy of c with its execution time ceiling
// set to d.
func (c RuntimeConfig) WithMaxExecutionTime(d time.Duration) RuntimeConfig {
	c.MaxExecutionTime = &d
	return c
}

// WithMaxMemoryBytes returns a copy of c with its memory ceiling set to n.
func (c RuntimeConfig) WithMaxMemoryBytes(n uint64) RuntimeConfig {
	c.MaxMemoryBytes = &n
	return c
}

// WithAllowIO returns a copy of c with its I/O permission set to allow.
func (c RuntimeConfig) WithAllowIO(allow bool) RuntimeConfig {
	c.AllowIO = allow
	return c
}

// WithAllowNetwork returns a copy of c with its network permission set to
// allow.
func (c RuntimeConfig) WithAllowNetwork(allow bool) RuntimeConfig {
	c.AllowNetwork = allow
	return c
}

// WithOutput returns a copy of c that writes program output to w.
func (c RuntimeConfig) WithOutput(w io.Writer) RuntimeConfig {
	c.Output = w
	return c
}

// configYAML is RuntimeConfig's YAML wire shape: durations and byte counts
// serialize as plain scalars (a millisecond count and a byte count) rather
// than relying on time.Duration's non-standard YAML marshaling, and Output
// is never round-tripped since a writer has no textual form.
type configYAML struct {
	MaxExecutionTimeMS *int64  `yaml:"max_execution_time_ms,omitempty"`
	MaxMemoryBytes     *uint64 `yaml:"max_memory_bytes,omitempty"`
	AllowIO            bool    `yaml:"allow_io"`
	AllowNetwork       bool    `yaml:"allow_network"`
}

// LoadYAML parses a RuntimeConfig from YAML, letting embedders externalize
// sandboxing policy instead of constructing it in Go. Output always
// defaults to os.Stdout; callers needing a different sink should call
// WithOutput afterward.
func LoadYAML(data []byte) (RuntimeConfig, error) {
	var wire configYAML
	if err := yaml.Unmarshal(data, &wire); err != nil {
		return RuntimeConfig{}, err
	}
	cfg := RuntimeConfig{AllowIO: wire.AllowIO, AllowNetwork: wire.AllowNetwork, Output: os.Stdout}
	if wire.MaxExecutionTimeMS != nil {
		d := time.Duration(*wire.MaxExecutionTimeMS) * time.Millisecond
		cfg.MaxExecutionTime = &d
	}
	cfg.MaxMemoryBytes = wire.MaxMemoryBytes
	return cfg, nil
}

// MarshalYAML renders c's sandboxing policy as YAML (Output is omitted: it
// has no textual form).
func (c RuntimeConfig) MarshalYAML() ([]byte, error) {
	wire := configYAML{AllowIO: c.AllowIO, AllowNetwork: c.AllowNetwork, MaxMemoryBytes: c.MaxMemoryBytes}
	if c.MaxExecutionTime != nil {
		ms := c.MaxExecutionTime.Milliseconds()
		wire.MaxExecutionTimeMS = &ms
	}
	return yaml.Marshal(wire)
}
