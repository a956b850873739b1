package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type kind int

const (
	kindNull kind = iota
	kindScalar
	kindList
	kindMap
)

// node is a format-neutral document tree that keeps mapping order.
type node struct {
	kind   kind
	keys   []string
	values []*node
	items  []*node
	scalar any
}

func (n *node) get(key string) (*node, bool) {
	for i, k := range n.keys {
		if k == key {
			return n.values[i], true
		}
	}
	return nil, false
}

func (n *node) describe() string {
	switch n.kind {
	case kindNull:
		return "null"
	case kindList:
		return "list"
	case kindMap:
		return "mapping"
	default:
		return fmt.Sprintf("%T", n.scalar)
	}
}

func (n *node) str() (string, bool) {
	if n == nil || n.kind != kindScalar {
		return "", false
	}
	switch v := n.scalar.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case int, int64, float64:
		return fmt.Sprint(v), true
	}
	return "", false
}

func (n *node) float() (float64, bool) {
	if n == nil || n.kind != kindScalar {
		return 0, false
	}
	switch v := n.scalar.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

type format int

const (
	formatYAML format = iota
	formatJSON
	formatTOML
)

func formatFor(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON
	case ".toml":
		return formatTOML
	default:
		return formatYAML
	}
}

func decode(data []byte, f format) (*node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &node{kind: kindNull}, nil
	}
	switch f {
	case formatJSON:
		return decodeJSON(data)
	case formatTOML:
		return decodeTOML(data)
	default:
		return decodeYAML(data)
	}
}

func decodeYAML(data []byte) (*node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return &node{kind: kindNull}, nil
	}
	return fromYAML(doc.Content[0])
}

func fromYAML(y *yaml.Node) (*node, error) {
	switch y.Kind {
	case yaml.AliasNode:
		return fromYAML(y.Alias)
	case yaml.MappingNode:
		n := &node{kind: kindMap}
		for i := 0; i+1 < len(y.Content); i += 2 {
			v, err := fromYAML(y.Content[i+1])
			if err != nil {
				return nil, err
			}
			n.keys = append(n.keys, y.Content[i].Value)
			n.values = append(n.values, v)
		}
		return n, nil
	case yaml.SequenceNode:
		n := &node{kind: kindList}
		for _, c := range y.Content {
			v, err := fromYAML(c)
			if err != nil {
				return nil, err
			}
			n.items = append(n.items, v)
		}
		return n, nil
	case yaml.ScalarNode:
		if y.Tag == "!!null" {
			return &node{kind: kindNull}, nil
		}
		var v any
		if err := y.Decode(&v); err != nil {
			return nil, err
		}
		return &node{kind: kindScalar, scalar: v}, nil
	}
	return &node{kind: kindNull}, nil
}

func decodeJSON(data []byte) (*node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	n, err := readJSON(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after document")
	}
	return n, nil
}

func readJSON(dec *json.Decoder) (*node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			n := &node{kind: kindMap}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, _ := kt.(string)
				v, err := readJSON(dec)
				if err != nil {
					return nil, err
				}
				n.keys = append(n.keys, key)
				n.values = append(n.values, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		case '[':
			n := &node{kind: kindList}
			for dec.More() {
				v, err := readJSON(dec)
				if err != nil {
					return nil, err
				}
				n.items = append(n.items, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	case nil:
		return &node{kind: kindNull}, nil
	default:
		return &node{kind: kindScalar, scalar: t}, nil
	}
}

func decodeTOML(data []byte) (*node, error) {
	var raw map[string]any
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, err
	}
	order := map[string]int{}
	for i, k := range md.Keys() {
		p := strings.Join(k, "\x00")
		if _, seen := order[p]; !seen {
			order[p] = i
		}
	}
	return fromTOML(raw, nil, order), nil
}

func fromTOML(v any, path []string, order map[string]int) *node {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		pos := func(k string) int {
			p := strings.Join(append(append([]string{}, path...), k), "\x00")
			if i, ok := order[p]; ok {
				return i
			}
			return len(order)
		}
		sort.SliceStable(keys, func(i, j int) bool {
			pi, pj := pos(keys[i]), pos(keys[j])
			if pi != pj {
				return pi < pj
			}
			return keys[i] < keys[j]
		})
		n := &node{kind: kindMap}
		for _, k := range keys {
			n.keys = append(n.keys, k)
			n.values = append(n.values, fromTOML(t[k], append(append([]string{}, path...), k), order))
		}
		return n
	case []map[string]any:
		n := &node{kind: kindList}
		for _, item := range t {
			n.items = append(n.items, fromTOML(item, path, order))
		}
		return n
	case []any:
		n := &node{kind: kindList}
		for _, item := range t {
			n.items = append(n.items, fromTOML(item, path, order))
		}
		return n
	case nil:
		return &node{kind: kindNull}
	default:
		return &node{kind: kindScalar, scalar: t}
	}
}
