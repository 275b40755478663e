// Package iterstore implements the versioned per-evaluation directory
// layout in 4.M: one directory per eval_id holding ground truth, a
// monotonically numbered sequence of iteration directories, and a running
// metric aggregate. All writes are atomic via temp-file-then-rename.
package iterstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"basegraph.app/t24spec/internal/model"
	"github.com/google/uuid"
)

const iterationDirPattern = "iteration-%03d"

var iterationDirRegexp = regexp.MustCompile(`^iteration-(\d{3,})$`)

// Store is the filesystem-backed iteration store rooted at a directory
// containing one subdirectory per eval_id.
type Store struct {
	root string
}

// NewStore constructs a Store rooted at root, creating it if absent.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating iteration store root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) evalDir(evalID string) string {
	return filepath.Join(s.root, evalID)
}

func (s *Store) iterationsDir(evalID string) string {
	return filepath.Join(s.evalDir(evalID), "iterations")
}

// NewIteration creates the next zero-padded iteration directory for evalID
// and returns its path and number.
func (s *Store) NewIteration(evalID string) (dir string, number int, err error) {
	existing, err := s.iterationNumbers(evalID)
	if err != nil {
		return "", 0, err
	}
	next := 1
	if len(existing) > 0 {
		next = existing[len(existing)-1] + 1
	}
	dir = filepath.Join(s.iterationsDir(evalID), fmt.Sprintf(iterationDirPattern, next))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("creating iteration directory: %w", err)
	}
	return dir, next, nil
}

// LatestIteration returns the most recent iteration directory and number
// for evalID, or ok=false if none exists.
func (s *Store) LatestIteration(evalID string) (dir string, number int, ok bool, err error) {
	nums, err := s.iterationNumbers(evalID)
	if err != nil {
		return "", 0, false, err
	}
	if len(nums) == 0 {
		return "", 0, false, nil
	}
	latest := nums[len(nums)-1]
	return filepath.Join(s.iterationsDir(evalID), fmt.Sprintf(iterationDirPattern, latest)), latest, true, nil
}

func (s *Store) iterationNumbers(evalID string) ([]int, error) {
	entries, err := os.ReadDir(s.iterationsDir(evalID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing iterations: %w", err)
	}

	var nums []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		match := iterationDirRegexp.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		n, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums, nil
}

// SaveExtracted writes the extracted BuildingSpec for one iteration.
func (s *Store) SaveExtracted(iterationDir string, spec model.BuildingSpec) error {
	return writeJSONAtomic(filepath.Join(iterationDir, "extracted.json"), spec)
}

// LoadExtracted reads extracted.json from iterationDir.
func (s *Store) LoadExtracted(iterationDir string) (model.BuildingSpec, error) {
	var spec model.BuildingSpec
	raw, err := os.ReadFile(filepath.Join(iterationDir, "extracted.json"))
	if err != nil {
		return spec, err
	}
	err = json.Unmarshal(raw, &spec)
	return spec, err
}

// SaveEvalResult writes eval_results.json for one iteration.
func (s *Store) SaveEvalResult(iterationDir string, result model.EvalResult) error {
	return writeJSONAtomic(filepath.Join(iterationDir, "eval_results.json"), result)
}

// LoadEvalResult reads eval_results.json from iterationDir.
func (s *Store) LoadEvalResult(iterationDir string) (model.EvalResult, error) {
	var result model.EvalResult
	raw, err := os.ReadFile(filepath.Join(iterationDir, "eval_results.json"))
	if err != nil {
		return result, err
	}
	err = json.Unmarshal(raw, &result)
	return result, err
}

// AggregateEntry is one iteration's row in aggregate.json.
type AggregateEntry struct {
	F1           float64                 `json:"f1"`
	Precision    float64                 `json:"precision"`
	Recall       float64                 `json:"recall"`
	ErrorsByType map[model.ErrorType]int `json:"errors_by_type"`
}

// RecordAggregate appends or overwrites iteration's row in evalID's
// aggregate.json metric history.
func (s *Store) RecordAggregate(evalID string, iteration int, entry AggregateEntry) error {
	path := filepath.Join(s.evalDir(evalID), "aggregate.json")
	aggregate := map[string]AggregateEntry{}
	if raw, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(raw, &aggregate)
	}
	aggregate[strconv.Itoa(iteration)] = entry
	return writeJSONAtomic(path, aggregate)
}

// documentMapCachePath is the eval-level cache location: the discovery
// worker runs once per eval_id regardless of how many iterations follow.
func (s *Store) documentMapCachePath(evalID string) string {
	return filepath.Join(s.evalDir(evalID), "document_map.json")
}

// LoadDocumentMap implements docmap.Cache.
func (s *Store) LoadDocumentMap(evalID string) (model.DocumentMap, bool, error) {
	raw, err := os.ReadFile(s.documentMapCachePath(evalID))
	if os.IsNotExist(err) {
		return model.DocumentMap{}, false, nil
	}
	if err != nil {
		return model.DocumentMap{}, false, err
	}
	var doc model.DocumentMap
	if err := json.Unmarshal(raw, &doc); err != nil {
		return model.DocumentMap{}, false, err
	}
	return doc, true, nil
}

// SaveDocumentMap implements docmap.Cache, persisting the eval-level cache
// read back by LoadDocumentMap on later calls for the same eval_id.
func (s *Store) SaveDocumentMap(evalID string, doc model.DocumentMap) error {
	if err := os.MkdirAll(s.evalDir(evalID), 0o755); err != nil {
		return fmt.Errorf("creating evaluation directory: %w", err)
	}
	return writeJSONAtomic(s.documentMapCachePath(evalID), doc)
}

// WriteIterationDocumentMap copies the eval's cached document map into
// iterationDir so the 4.M per-iteration layout carries a copy alongside
// extracted.json even though the discovery worker itself only ran once.
func (s *Store) WriteIterationDocumentMap(iterationDir string, doc model.DocumentMap) error {
	return writeJSONAtomic(filepath.Join(iterationDir, "document_map.json"), doc)
}

func writeJSONAtomic(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
