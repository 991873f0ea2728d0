// Package overrides holds the per-vault corrections applied at fixed points of the yield pipeline.
package overrides

import (
	_ "embed"
	"fmt"
	"os"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/elys-network/vault-apy/internal/utils"
	"gopkg.in/yaml.v3"
)

//go:embed overrides.yaml
var defaultOverrides []byte

// Entry is the set of overrides of one vault. Nil fields are not overridden.
type Entry struct {
	Note       string   `yaml:"note,omitempty"`
	Gauge      *string  `yaml:"gauge,omitempty"`
	Boost      *float64 `yaml:"boost,omitempty"`
	PoolApy    *float64 `yaml:"poolApy,omitempty"`
	Strategies []string `yaml:"strategies,omitempty"`
}

type document struct {
	Vaults map[string]Entry `yaml:"vaults"`
}

// Table maps normalized vault addresses to their overrides. A nil *Table overrides nothing.
type Table struct {
	entries map[string]Entry
}

// Parse reads a YAML override document.
func Parse(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse overrides: %w", err)
	}
	t := &Table{entries: make(map[string]Entry, len(doc.Vaults))}
	for address, entry := range doc.Vaults {
		if entry.Boost != nil && *entry.Boost < 0 {
			return nil, fmt.Errorf("parse overrides: negative boost for %s", address)
		}
		t.entries[types.NormalizeAddress(address)] = entry
	}
	return t, nil
}

// Default returns the built-in table.
func Default() (*Table, error) {
	return Parse(defaultOverrides)
}

// Load returns the built-in table with the file at path merged over it.
// An empty path returns the built-in table.
func Load(path string) (*Table, error) {
	base, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides file: %w", err)
	}
	extra, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return base.Merge(extra), nil
}

// Merge returns a table where entries of other replace entries of t field by field.
func (t *Table) Merge(other *Table) *Table {
	out := &Table{entries: map[string]Entry{}}
	if t != nil {
		for k, v := range t.entries {
			out.entries[k] = v
		}
	}
	if other == nil {
		return out
	}
	for k, v := range other.entries {
		current := out.entries[k]
		if v.Note != "" {
			current.Note = v.Note
		}
		if v.Gauge != nil {
			current.Gauge = v.Gauge
		}
		if v.Boost != nil {
			current.Boost = v.Boost
		}
		if v.PoolApy != nil {
			current.PoolApy = v.PoolApy
		}
		if v.Strategies != nil {
			current.Strategies = v.Strategies
		}
		out.entries[k] = current
	}
	return out
}

// Len returns the number of vaults with overrides.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

func (t *Table) lookup(vault string) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	e, ok := t.entries[types.NormalizeAddress(vault)]
	return e, ok
}

// Gauge returns the gauge to use for vault given the resolved one.
func (t *Table) Gauge(vault, resolved string) string {
	if e, ok := t.lookup(vault); ok && e.Gauge != nil {
		return *e.Gauge
	}
	return resolved
}

// Boost returns the boost to use for vault given the computed one.
func (t *Table) Boost(vault string, computed sdkmath.LegacyDec) sdkmath.LegacyDec {
	if e, ok := t.lookup(vault); ok && e.Boost != nil {
		if d, err := utils.DecFromFloat64(*e.Boost); err == nil {
			return d
		}
	}
	return computed
}

// PoolApy returns the pool APY to use for vault given the computed one.
func (t *Table) PoolApy(vault string, computed sdkmath.LegacyDec) sdkmath.LegacyDec {
	if e, ok := t.lookup(vault); ok && e.PoolApy != nil {
		if d, err := utils.DecFromFloat64(*e.PoolApy); err == nil {
			return d
		}
	}
	return computed
}

// Strategies returns the extra strategies of vault.
func (t *Table) Strategies(vault string) []string {
	if e, ok := t.lookup(vault); ok {
		return append([]string(nil), e.Strategies...)
	}
	return nil
}
