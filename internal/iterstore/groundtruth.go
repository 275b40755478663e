package iterstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"basegraph.app/t24spec/internal/model"
)

// LoadGroundTruth reads evalID's ground-truth flat file -- a JSON object
// mapping field_path to value, using the same path grammar as
// internal/verify's discrepancy paths -- and adapts it into a BuildingSpec
// isomorphic to the extracted record, per 6. EXTERNAL INTERFACES.
func (s *Store) LoadGroundTruth(evalID string) (model.BuildingSpec, error) {
	path, err := s.groundTruthPath(evalID)
	if err != nil {
		return model.BuildingSpec{}, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return model.BuildingSpec{}, fmt.Errorf("reading ground truth: %w", err)
	}

	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		return model.BuildingSpec{}, fmt.Errorf("decoding ground truth table: %w", err)
	}

	tree := map[string]any{}
	for fieldPath, value := range flat {
		setPath(tree, fieldPath, value)
	}
	finalize(tree)

	treeJSON, err := json.Marshal(tree)
	if err != nil {
		return model.BuildingSpec{}, fmt.Errorf("re-marshaling ground truth tree: %w", err)
	}

	var spec model.BuildingSpec
	if err := json.Unmarshal(treeJSON, &spec); err != nil {
		return model.BuildingSpec{}, fmt.Errorf("adapting ground truth into BuildingSpec: %w", err)
	}
	return spec, nil
}

func (s *Store) groundTruthPath(evalID string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.evalDir(evalID), "ground_truth.*"))
	if err != nil {
		return "", fmt.Errorf("locating ground truth file: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no ground_truth.* file found for eval %s", evalID)
	}
	return matches[0], nil
}

// listContainer accumulates named-list items in first-seen order while a
// flat field-path table is being reconstructed into a nested tree; it is
// converted into a plain []any by finalize.
type listContainer struct {
	order []string
	items map[string]map[string]any
}

var pathToken = regexp.MustCompile(`([a-zA-Z0-9_]+)(\[([^\]]+)\])?`)

type pathSegment struct {
	key    string
	isList bool
	name   string
}

func parsePath(path string) []pathSegment {
	matches := pathToken.FindAllStringSubmatch(path, -1)
	segments := make([]pathSegment, 0, len(matches))
	for _, m := range matches {
		seg := pathSegment{key: m[1]}
		if m[3] != "" {
			seg.isList = true
			seg.name = strings.ToLower(strings.TrimSpace(m[3]))
		}
		segments = append(segments, seg)
	}
	return segments
}

// setPath writes value at the nested position path describes, creating
// intermediate objects and named-list containers as needed.
func setPath(root map[string]any, path string, value any) {
	node := root
	segments := parsePath(path)

	for i, seg := range segments {
		isLast := i == len(segments)-1

		if seg.isList {
			container := listContainerAt(node, seg.key)
			item, ok := container.items[seg.name]
			if !ok {
				item = map[string]any{"name": seg.name}
				container.items[seg.name] = item
				container.order = append(container.order, seg.name)
			}
			if isLast {
				return
			}
			node = item
			continue
		}

		if isLast {
			node[seg.key] = value
			return
		}
		node = mapChildAt(node, seg.key)
	}
}

func listContainerAt(node map[string]any, key string) *listContainer {
	existing, ok := node[key]
	if ok {
		if c, ok := existing.(*listContainer); ok {
			return c
		}
	}
	c := &listContainer{items: map[string]map[string]any{}}
	node[key] = c
	return c
}

func mapChildAt(node map[string]any, key string) map[string]any {
	existing, ok := node[key]
	if ok {
		if m, ok := existing.(map[string]any); ok {
			return m
		}
	}
	m := map[string]any{}
	node[key] = m
	return m
}

// finalize walks tree, converting every *listContainer into an ordered
// []any of its items, recursing into nested objects and list items so
// doubly-nested named lists (water heaters within a water heating system)
// resolve correctly.
func finalize(node map[string]any) {
	for key, value := range node {
		switch v := value.(type) {
		case *listContainer:
			list := make([]any, 0, len(v.order))
			for _, name := range v.order {
				item := v.items[name]
				finalize(item)
				list = append(list, item)
			}
			node[key] = list
		case map[string]any:
			finalize(v)
		}
	}
}
