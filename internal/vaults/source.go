// Package vaults loads the resolved vault snapshots the engine computes.
package vaults

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/elys-network/vault-apy/internal/logger"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/rs/zerolog"
)

var (
	ErrVaultNotFound = errors.New("vault not found")
	ErrInvalidVault  = errors.New("vault is invalid")
)

// Source provides vault snapshots.
// Implementations return fresh copies on every call; callers may modify them.
type Source interface {
	// Vaults returns every known vault in a stable order.
	Vaults(ctx context.Context) ([]types.Vault, error)

	// Vault returns one vault by address, matching case-insensitively.
	Vault(ctx context.Context, address string) (types.Vault, error)
}

// FileSource reads vaults from a JSON array on disk. The file is read on
// every call so edits are picked up by the next export cycle.
type FileSource struct {
	path   string
	logger zerolog.Logger
}

// NewFileSource returns a source backed by the file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path, logger: logger.GetForComponent("vault_source")}
}

func (s *FileSource) Vaults(_ context.Context) ([]types.Vault, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read vaults file: %w", err)
	}
	vaults, skipped, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse vaults file %s: %w", s.path, err)
	}
	for _, e := range skipped {
		s.logger.Warn().Err(e).Msg("Skipping vault entry")
	}
	return vaults, nil
}

func (s *FileSource) Vault(ctx context.Context, address string) (types.Vault, error) {
	all, err := s.Vaults(ctx)
	if err != nil {
		return types.Vault{}, err
	}
	return Find(all, address)
}

// Find returns the vault of address among vaults.
func Find(vaults []types.Vault, address string) (types.Vault, error) {
	for _, v := range vaults {
		if types.SameAddress(v.Address, address) {
			return v, nil
		}
	}
	return types.Vault{}, fmt.Errorf("%w: %s", ErrVaultNotFound, address)
}

// Parse decodes a JSON array of vaults and fills defaults: type v2 and protocol curve.
// Entries without identity or duplicated are returned as skipped errors rather than failing the file.
func Parse(data []byte) ([]types.Vault, []error, error) {
	var raw []types.Vault
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]types.Vault, 0, len(raw))
	var skipped []error
	for i, v := range raw {
		if v.Address == "" || v.Token.Address == "" {
			skipped = append(skipped, fmt.Errorf("%w: entry %d has no vault or token address", ErrInvalidVault, i))
			continue
		}
		if _, dup := seen[v.Key()]; dup {
			skipped = append(skipped, fmt.Errorf("%w: duplicate vault %s", ErrInvalidVault, v.Address))
			continue
		}
		seen[v.Key()] = struct{}{}

		if v.Type == "" {
			v.Type = types.VaultTypeV2
		}
		if v.Type != types.VaultTypeV1 && v.Type != types.VaultTypeV2 {
			skipped = append(skipped, fmt.Errorf("%w: vault %s has unknown type %q", ErrInvalidVault, v.Address, v.Type))
			continue
		}
		if v.Protocol == "" {
			v.Protocol = types.ProtocolCurve
		}
		out = append(out, v)
	}
	return out, skipped, nil
}

// Static is an in-memory Source.
type Static []types.Vault

func (s Static) Vaults(_ context.Context) ([]types.Vault, error) {
	return append([]types.Vault(nil), s...), nil
}

func (s Static) Vault(_ context.Context, address string) (types.Vault, error) {
	return Find(s, address)
}
