// Package discovery enumerates test cases from a test corpus directory.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum-optimism/infra/bettertest/types"
	"github.com/ethereum/go-ethereum/log"
)

// Config contains discovery configuration
type Config struct {
	Log          log.Logger
	TestDir      string // Root of the test corpus
	OutputDir    string // Directory mirroring the corpus layout for logs and artifacts
	DriverSuffix string // File name suffix that marks a driver, defaults to types.DefaultDriverSuffix
}

// Discover returns every test case under cfg.TestDir, sorted by parent directory
// name and then by file name so that sequential runs are deterministic.
func Discover(cfg Config) ([]types.TestCase, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.DriverSuffix == "" {
		cfg.DriverSuffix = types.DefaultDriverSuffix
	}

	drivers, err := FindDrivers(cfg.TestDir, cfg.DriverSuffix)
	if err != nil {
		return nil, err
	}

	cases := make([]types.TestCase, 0, len(drivers))
	for _, driver := range drivers {
		tc, err := types.NewTestCase(driver, cfg.TestDir, cfg.OutputDir, cfg.DriverSuffix)
		if err != nil {
			return nil, fmt.Errorf("failed to derive test case: %w", err)
		}
		cases = append(cases, tc)
	}

	cfg.Log.Debug("Discovered test cases", "testDir", cfg.TestDir, "count", len(cases))
	return cases, nil
}

// FindDrivers walks root recursively and returns the sorted paths of all driver files.
// A missing root is reported as a types.ConfigurationError.
func FindDrivers(root, driverSuffix string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.NewConfigurationError(fmt.Sprintf("test directory %s does not exist", root), err)
		}
		return nil, types.NewConfigurationError(fmt.Sprintf("cannot access test directory %s", root), err)
	}
	if !info.IsDir() {
		return nil, types.NewConfigurationError(fmt.Sprintf("test directory %s is not a directory", root), nil)
	}

	var drivers []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), driverSuffix) {
			drivers = append(drivers, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk test directory %s: %w", root, err)
	}

	SortDrivers(drivers)
	return drivers, nil
}

// SortDrivers orders driver paths by (parent directory name, file name),
// falling back to the full path when both match.
func SortDrivers(drivers []string) {
	sort.SliceStable(drivers, func(i, j int) bool {
		pi, pj := filepath.Base(filepath.Dir(drivers[i])), filepath.Base(filepath.Dir(drivers[j]))
		if pi != pj {
			return pi < pj
		}
		fi, fj := filepath.Base(drivers[i]), filepath.Base(drivers[j])
		if fi != fj {
			return fi < fj
		}
		return drivers[i] < drivers[j]
	})
}
