package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// toTree round-trips cfg through JSON so it can be walked by key.
func toTree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// GetByPath returns the value at a dot path such as "lookup.http.url".
func GetByPath(cfg *Config, path string) (any, error) {
	tree, err := toTree(cfg)
	if err != nil {
		return nil, err
	}

	var cur any = tree
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: cannot descend into %T", path, cur)
		}
		if cur, ok = m[key]; !ok {
			return nil, fmt.Errorf("key not found: %s", path)
		}
	}
	return cur, nil
}

// SetByPath assigns raw at a dot path. raw is converted to the type of the
// value it replaces.
func SetByPath(cfg *Config, path, raw string) error {
	tree, err := toTree(cfg)
	if err != nil {
		return err
	}

	keys := strings.Split(path, ".")
	node := tree
	for _, key := range keys[:len(keys)-1] {
		child, ok := node[key].(map[string]any)
		if !ok {
			return fmt.Errorf("key not found: %s", path)
		}
		node = child
	}
	last := keys[len(keys)-1]
	existing, ok := node[last]
	if !ok {
		return fmt.Errorf("key not found: %s", path)
	}
	node[last] = coerce(existing, raw)

	data, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	var updated Config
	if err := json.Unmarshal(data, &updated); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	*cfg = updated
	return nil
}

func coerce(existing any, s string) any {
	switch existing.(type) {
	case bool:
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	case float64:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

// Sanitize returns a copy of cfg with secrets masked.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	for _, v := range secretFields(&out) {
		*v = maskString(*v)
	}
	return &out
}

// maskString keeps the first and last four characters of long values and
// leaves ssm references readable.
func maskString(s string) string {
	switch {
	case s == "" || strings.HasPrefix(s, ssmPrefix):
		return s
	case len(s) <= 8:
		return "***"
	default:
		return s[:4] + "****" + s[len(s)-4:]
	}
}

// ListPaths returns every leaf dot path in sorted order.
func ListPaths(cfg *Config) []string {
	tree, err := toTree(cfg)
	if err != nil {
		return nil
	}
	var paths []string
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok {
				walk(p, child)
				continue
			}
			paths = append(paths, p)
		}
	}
	walk("", tree)
	sort.Strings(paths)
	return paths
}
