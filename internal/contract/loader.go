package contract

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"toolcheck/internal/logging"
)

// contractSuffixes are the filename suffixes recognized as contract documents.
var contractSuffixes = []string{".contract.yaml", ".contract.yml"}

// ErrNoContracts is returned when a directory yields zero contract documents.
var ErrNoContracts = errors.New("no contract files found")

// DiscoverContractFiles recursively enumerates contract documents under dir.
// Returns a configuration error if dir does not exist.
func DiscoverContractFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("tools directory does not exist: %s", dir)
		}
		return nil, fmt.Errorf("cannot access tools directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		for _, suffix := range contractSuffixes {
			if strings.HasSuffix(d.Name(), suffix) {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	logging.Get(logging.CategoryContracts).Info("Discovered %d contract file(s) under %s", len(files), dir)
	return files, nil
}

// LoadContract parses and validates one contract document. Unknown
// top-level fields are rejected.
func LoadContract(path string) (*ParsedContract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contract %s: %w", path, err)
	}

	var c ToolContract
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse contract %s: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("contract %s: %w", path, err)
	}

	parsed := &ParsedContract{
		Contract: c,
		FilePath: path,
		Dir:      filepath.Dir(path),
		ToolName: ExtractToolNameFromPath(path),
	}

	logging.Get(logging.CategoryContracts).Debug("Loaded contract for tool %q from %s (%d tests)",
		c.Tool, path, len(c.Tests))
	return parsed, nil
}

// LoadAllContracts loads every discovered contract under dir. Zero
// contracts is a configuration error.
func LoadAllContracts(dir string) ([]*ParsedContract, error) {
	files, err := DiscoverContractFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoContracts, dir)
	}

	contracts := make([]*ParsedContract, 0, len(files))
	for _, f := range files {
		c, err := LoadContract(f)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, nil
}

// ExtractToolNameFromPath derives the tool name from a contract filename
// without opening the file: "tools/weather/get_weather.contract.yaml"
// yields "get_weather".
func ExtractToolNameFromPath(path string) string {
	base := filepath.Base(path)
	for _, suffix := range contractSuffixes {
		if strings.HasSuffix(base, suffix) {
			return strings.TrimSuffix(base, suffix)
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FindContractForTool returns the contract whose tool name matches, or nil.
func FindContractForTool(contracts []*ParsedContract, tool string) *ParsedContract {
	for _, c := range contracts {
		if c.Contract.Tool == tool {
			return c
		}
	}
	return nil
}
