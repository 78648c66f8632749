// Package artifact locates compiled contract artifacts on disk.
//
// Two layouts are understood:
//   - Hardhat: <artifacts>/contracts/Project.sol/Project.json, with the
//     creation code in a "bytecode" string and unresolved libraries listed
//     in "linkReferences". Debug files (*.dbg.json) and build-info/ are skipped.
//   - Foundry: <out>/Project.sol/Project.json, with the creation code in
//     "bytecode.object".
//
// Lookup is by contract name ("Project") or by fully qualified name
// ("contracts/Project.sol:Project"). Every lookup failure is reported as a
// model.KindArtifactNotFound error, because from the deployer's point of
// view there is no deployable artifact in each case.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/shinji-kodama/project-deployer/internal/model"
)

// Artifact is a compiled, deployable contract.
type Artifact struct {
	ContractName string
	SourceName   string
	ABI          abi.ABI
	Bytecode     []byte

	// Path is the artifact file the contract was read from.
	Path string
}

// FullyQualifiedName returns "<sourceName>:<contractName>", or just the
// contract name when the source is unknown.
func (a *Artifact) FullyQualifiedName() string {
	if a.SourceName == "" {
		return a.ContractName
	}
	return a.SourceName + ":" + a.ContractName
}

// rawArtifact covers the fields shared by Hardhat and Foundry artifacts.
type rawArtifact struct {
	Format         string          `json:"_format"`
	ContractName   string          `json:"contractName"`
	SourceName     string          `json:"sourceName"`
	ABI            json.RawMessage `json:"abi"`
	Bytecode       json.RawMessage `json:"bytecode"`
	LinkReferences json.RawMessage `json:"linkReferences"`
}

// foundryBytecode is the object form of "bytecode" used by Foundry.
type foundryBytecode struct {
	Object         string          `json:"object"`
	LinkReferences json.RawMessage `json:"linkReferences"`
}

// Store finds artifacts under a root directory.
type Store struct {
	root string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the directory the store searches.
func (s *Store) Root() string {
	return s.root
}

// Find returns the artifact for name, which may be a bare contract name or
// a fully qualified "path/File.sol:Name".
func (s *Store) Find(name string) (*Artifact, error) {
	contractName, sourceName := splitName(name)
	if contractName == "" {
		return nil, notFound(name, fmt.Errorf("empty contract name"))
	}

	info, err := os.Stat(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(name, fmt.Errorf("artifacts directory %s does not exist; compile the contracts first", s.root))
		}
		return nil, notFound(name, err)
	}
	if !info.IsDir() {
		return nil, notFound(name, fmt.Errorf("artifacts path %s is not a directory", s.root))
	}

	candidates, err := s.candidates(contractName)
	if err != nil {
		return nil, notFound(name, err)
	}

	// Only the header is read while filtering, so a broken artifact that
	// the lookup does not select cannot fail it.
	var (
		matches    []*header
		unreadable error
	)
	for _, path := range candidates {
		h, err := readHeader(path)
		if err != nil {
			if unreadable == nil {
				unreadable = err
			}
			continue
		}
		if h.contractName != contractName || !h.matchesSource(sourceName) {
			continue
		}
		matches = append(matches, h)
	}

	switch len(matches) {
	case 0:
		if unreadable != nil {
			return nil, notFound(name, unreadable)
		}
		return nil, notFound(name, fmt.Errorf("no artifact for contract %q under %s", name, s.root))
	case 1:
	default:
		fqns := make([]string, 0, len(matches))
		for _, m := range matches {
			fqns = append(fqns, m.fullyQualifiedName())
		}
		sort.Strings(fqns)
		return nil, notFound(name, fmt.Errorf(
			"multiple artifacts for contract %q, use a fully qualified name: %s",
			name, strings.Join(fqns, ", ")))
	}

	a, err := matches[0].decode()
	if err != nil {
		return nil, notFound(name, err)
	}
	if len(a.Bytecode) == 0 {
		return nil, notFound(name, fmt.Errorf(
			"%s has no creation bytecode; it is abstract or an interface and cannot be deployed",
			a.FullyQualifiedName()))
	}
	return a, nil
}

// candidates lists every "<contractName>.json" file under the root,
// skipping Hardhat debug files and build-info.
func (s *Store) candidates(contractName string) ([]string, error) {
	want := contractName + ".json"
	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "build-info" && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == want {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", s.root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// header is an artifact file parsed far enough to select it by name.
type header struct {
	path         string
	raw          rawArtifact
	contractName string
	sourceName   string

	// sourceInferred is set when the file records no sourceName and the
	// source was taken from the enclosing <File>.sol directory (Foundry).
	sourceInferred bool
}

// readHeader parses one artifact file in either supported layout without
// decoding its abi or bytecode.
func readHeader(path string) (*header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	var raw rawArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid artifact %s: %w", path, err)
	}

	h := &header{
		path:         path,
		raw:          raw,
		contractName: raw.ContractName,
		sourceName:   raw.SourceName,
	}
	// Foundry artifacts carry no contractName; the file name is the contract.
	if h.contractName == "" {
		h.contractName = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	if h.sourceName == "" {
		if dir := filepath.Base(filepath.Dir(path)); strings.HasSuffix(dir, ".sol") {
			h.sourceName = dir
			h.sourceInferred = true
		}
	}
	return h, nil
}

// matchesSource reports whether the artifact was compiled from sourceName.
// Recorded source names must match exactly; an inferred one only knows the
// file name, so it matches any path ending in that file.
func (h *header) matchesSource(sourceName string) bool {
	if sourceName == "" {
		return true
	}
	if h.sourceInferred {
		return filepath.Base(sourceName) == h.sourceName
	}
	return h.sourceName == sourceName
}

func (h *header) fullyQualifiedName() string {
	return (&Artifact{ContractName: h.contractName, SourceName: h.sourceName}).FullyQualifiedName()
}

// decode parses the abi and creation code of a selected artifact.
func (h *header) decode() (*Artifact, error) {
	path, raw := h.path, h.raw
	a := &Artifact{
		ContractName: h.contractName,
		SourceName:   h.sourceName,
		Path:         path,
	}

	if len(raw.ABI) == 0 {
		return nil, fmt.Errorf("artifact %s has no abi", path)
	}
	parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, fmt.Errorf("artifact %s: invalid abi: %w", path, err)
	}
	a.ABI = parsed

	code, links, err := decodeBytecode(raw)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	if hasLinkReferences(links) || strings.Contains(code, "__") {
		return nil, fmt.Errorf("artifact %s needs library linking, which is not supported", path)
	}
	if code == "" || code == "0x" {
		return a, nil
	}
	bin, err := hexutil.Decode(ensure0x(code))
	if err != nil {
		return nil, fmt.Errorf("artifact %s: invalid bytecode: %w", path, err)
	}
	a.Bytecode = bin
	return a, nil
}

// decodeBytecode returns the creation code as a hex string and the link
// references, from either the Hardhat string or the Foundry object form.
func decodeBytecode(raw rawArtifact) (string, json.RawMessage, error) {
	if len(raw.Bytecode) == 0 || string(raw.Bytecode) == "null" {
		return "", raw.LinkReferences, nil
	}

	var code string
	if err := json.Unmarshal(raw.Bytecode, &code); err == nil {
		return code, raw.LinkReferences, nil
	}

	var obj foundryBytecode
	if err := json.Unmarshal(raw.Bytecode, &obj); err != nil {
		return "", nil, fmt.Errorf("unrecognized bytecode field: %w", err)
	}
	return obj.Object, obj.LinkReferences, nil
}

func hasLinkReferences(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var refs map[string]json.RawMessage
	if err := json.Unmarshal(raw, &refs); err != nil {
		return false
	}
	return len(refs) > 0
}

func ensure0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}

// splitName splits "path/File.sol:Name" into ("Name", "path/File.sol").
func splitName(name string) (contractName, sourceName string) {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, ":"); i >= 0 {
		return name[i+1:], name[:i]
	}
	return name, ""
}

func notFound(name string, err error) error {
	return model.NewDeployError(model.KindArtifactNotFound, name, err)
}
