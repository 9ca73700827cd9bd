package hooks

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// LoadError reports collection trouble for a single hook file. One bad file
// does not fail the whole collection run; the collector skips it and returns
// the LoadError for the caller to log.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("hooks: %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// CheckConfigFunc validates a provider binding's config string at load time.
type CheckConfigFunc func(providerName, config string) error

// Collect walks dir (non-recursively when recursive is false) and builds a
// Snapshot from every executable file found, parsing its leading `##`
// header block. checkConfig is invoked once per provider binding so
// misconfigured bindings are caught before the hook is admitted; pass nil to
// skip that validation (e.g. when the provider registry isn't available
// yet).
//
// Files that fail to parse are skipped with a *LoadError appended to the
// returned list. A directory that cannot be read (e.g. dir does not exist)
// is reported the same way, as a *LoadError alongside an empty snapshot.
func Collect(dir string, recursive bool, checkConfig CheckConfigFunc) (*Snapshot, []*LoadError) {
	var found []*Hook
	var errs []*LoadError

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, &LoadError{Path: path, Err: err})
			return nil
		}
		if d.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			errs = append(errs, &LoadError{Path: path, Err: err})
			return nil
		}
		if !isExecutable(info) {
			return nil
		}
		h, err := parseHookFile(path, checkConfig)
		if err != nil {
			errs = append(errs, &LoadError{Path: path, Err: err})
			return nil
		}
		found = append(found, h)
		return nil
	})
	if walkErr != nil {
		return nil, append(errs, &LoadError{Path: dir, Err: walkErr})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return NewSnapshot(found), errs
}

func isExecutable(info fs.FileInfo) bool {
	return !info.IsDir() && info.Mode()&0o111 != 0
}

const (
	directiveParallel = "fisher-parallel"
	directiveStatus   = "fisher-status"
)

// parseHookFile reads the leading comment block of a script and builds a
// Hook from its `##`-prefixed directives. Parsing stops at the first
// non-comment, non-blank line.
func parseHookFile(path string, checkConfig CheckConfigFunc) (*Hook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	h := &Hook{
		ID:         uuid.NewString(),
		Name:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		ScriptPath: absPath,
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			break
		}
		if !strings.HasPrefix(line, "##") {
			continue
		}
		directive := strings.TrimSpace(strings.TrimPrefix(line, "##"))
		key, value, ok := strings.Cut(directive, ":")
		if !ok {
			return nil, fmt.Errorf("malformed directive %q", directive)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch strings.ToLower(key) {
		case directiveParallel:
			b, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("Fisher-Parallel: %w", err)
			}
			h.Parallel = b
		case directiveStatus:
			var sub StatusSubscription
			if err := json.Unmarshal([]byte(value), &sub); err != nil {
				return nil, fmt.Errorf("Fisher-Status: %w", err)
			}
			h.Status = &sub
		case "":
			return nil, fmt.Errorf("empty directive name")
		default:
			if checkConfig != nil {
				if err := checkConfig(key, value); err != nil {
					return nil, fmt.Errorf("provider %q config: %w", key, err)
				}
			}
			h.Bindings = append(h.Bindings, Binding{ProviderName: key, Config: value})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return h, nil
}
