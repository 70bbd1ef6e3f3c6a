package relspec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"rowpreload/internal/loaderr"
	"rowpreload/internal/rowset"
)

const (
	keyOnly            = "only"
	keyExcept          = "except"
	keyMethods         = "methods"
	keyProcs           = "procs"
	keyRequiredColumns = "required_columns"
	keyInclude         = "include"
)

func isOptionKey(key string) bool {
	switch key {
	case keyOnly, keyExcept, keyMethods, keyProcs, keyRequiredColumns, keyInclude:
		return true
	}
	return false
}

// projectionFields receives the list-valued options through mapstructure.
type projectionFields struct {
	Only            []string `mapstructure:"only"`
	Except          []string `mapstructure:"except"`
	Methods         []string `mapstructure:"methods"`
	RequiredColumns []string `mapstructure:"required_columns"`
}

// Parse converts a loosely typed specification into a Spec:
//   - string: a relation name
//   - []string, []any: a list, each element parsed in turn
//   - map[string]any: a mapping in sorted key order; map values are options, any
//     other value means default options
//   - Spec, Entry, nil
//
// Any other shape is a configuration error naming the value.
func Parse(v any) (Spec, error) {
	switch val := v.(type) {
	case nil:
		return Spec{}, nil
	case Spec:
		return val, nil
	case Entry:
		return Mapping(val), nil
	case string:
		if strings.TrimSpace(val) == "" {
			return Spec{}, loaderr.Unrecognized(v)
		}
		return Name(val), nil
	case []string:
		specs := make([]Spec, 0, len(val))
		for _, name := range val {
			spec, err := Parse(name)
			if err != nil {
				return Spec{}, err
			}
			specs = append(specs, spec)
		}
		return List(specs...), nil
	case []any:
		specs := make([]Spec, 0, len(val))
		for _, item := range val {
			spec, err := Parse(item)
			if err != nil {
				return Spec{}, err
			}
			specs = append(specs, spec)
		}
		return List(specs...), nil
	case map[string]any:
		names := make([]string, 0, len(val))
		for name := range val {
			names = append(names, name)
		}
		sort.Strings(names)
		entries := make([]Entry, 0, len(names))
		for _, name := range names {
			opts, err := ParseOptions(val[name])
			if err != nil {
				return Spec{}, err
			}
			entries = append(entries, Entry{Name: name, Options: opts})
		}
		return Mapping(entries...), nil
	default:
		return Spec{}, loaderr.Unrecognized(v)
	}
}

// ParseOptions converts an options value. Values that are not options structures
// (true, a bare name) yield default options.
func ParseOptions(v any) (Options, error) {
	switch val := v.(type) {
	case Options:
		return val, nil
	case *Options:
		if val == nil {
			return Options{}, nil
		}
		return *val, nil
	case map[string]any:
		return parseOptionsMap(val)
	default:
		return Options{}, nil
	}
}

func parseOptionsMap(raw map[string]any) (Options, error) {
	var opts Options

	known := make(map[string]any)
	typeKeys := make([]string, 0)
	for key, value := range raw {
		if isOptionKey(key) {
			known[key] = value
			continue
		}
		if _, ok := value.(map[string]any); ok {
			typeKeys = append(typeKeys, key)
		}
	}

	var fields projectionFields
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &fields,
	})
	if err != nil {
		return Options{}, err
	}
	listed := make(map[string]any, len(known))
	for key, value := range known {
		if key != keyProcs && key != keyInclude {
			listed[key] = value
		}
	}
	if err := decoder.Decode(listed); err != nil {
		return Options{}, &loaderr.ConfigurationError{Value: raw, Reason: err.Error()}
	}
	opts.Only = fields.Only
	opts.Except = fields.Except
	opts.Methods = fields.Methods
	opts.RequiredColumns = fields.RequiredColumns

	if procs, ok := known[keyProcs]; ok {
		opts.Procs, err = parseProcs(procs)
		if err != nil {
			return Options{}, err
		}
	}
	if include, ok := known[keyInclude]; ok {
		opts.Include, err = Parse(include)
		if err != nil {
			return Options{}, err
		}
	}

	sort.Strings(typeKeys)
	for _, key := range typeKeys {
		typed, err := parseOptionsMap(raw[key].(map[string]any))
		if err != nil {
			return Options{}, err
		}
		if opts.Types == nil {
			opts.Types = make(map[string]Options)
		}
		opts.Types[strings.ToLower(key)] = typed
	}
	return opts, nil
}

func parseProcs(v any) ([]Proc, error) {
	switch val := v.(type) {
	case []Proc:
		return val, nil
	case map[string]func(rowset.Row) any:
		names := make([]string, 0, len(val))
		for name := range val {
			names = append(names, name)
		}
		sort.Strings(names)
		procs := make([]Proc, 0, len(names))
		for _, name := range names {
			procs = append(procs, Proc{Name: name, Fn: val[name]})
		}
		return procs, nil
	case map[string]any:
		names := make([]string, 0, len(val))
		for name := range val {
			names = append(names, name)
		}
		sort.Strings(names)
		procs := make([]Proc, 0, len(names))
		for _, name := range names {
			fn, ok := val[name].(func(rowset.Row) any)
			if !ok {
				return nil, &loaderr.ConfigurationError{Value: val[name], Reason: fmt.Sprintf("proc %q is not a func(rowset.Row) any", name)}
			}
			procs = append(procs, Proc{Name: name, Fn: fn})
		}
		return procs, nil
	default:
		return nil, loaderr.Unrecognized(v)
	}
}

// ParseDocument parses a YAML (or JSON) relation specification, keeping mapping keys
// in document order. Procs cannot be expressed in a document.
func ParseDocument(data []byte) (Spec, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Spec{}, &loaderr.ConfigurationError{Value: string(data), Reason: err.Error()}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return Spec{}, nil
	}
	return specFromNode(doc.Content[0])
}

func specFromNode(node *yaml.Node) (Spec, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" || node.Value == "" {
			return Spec{}, nil
		}
		return Name(node.Value), nil
	case yaml.SequenceNode:
		specs := make([]Spec, 0, len(node.Content))
		for _, item := range node.Content {
			spec, err := specFromNode(item)
			if err != nil {
				return Spec{}, err
			}
			specs = append(specs, spec)
		}
		return List(specs...), nil
	case yaml.MappingNode:
		entries := make([]Entry, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			name, value := node.Content[i].Value, node.Content[i+1]
			var opts Options
			if value.Kind == yaml.MappingNode {
				var err error
				opts, err = optionsFromNode(value)
				if err != nil {
					return Spec{}, err
				}
			}
			entries = append(entries, Entry{Name: name, Options: opts})
		}
		return Mapping(entries...), nil
	case yaml.AliasNode:
		return specFromNode(node.Alias)
	default:
		return Spec{}, loaderr.Unrecognized(node.Value)
	}
}

func optionsFromNode(node *yaml.Node) (Options, error) {
	var opts Options
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		var err error
		switch key {
		case keyOnly:
			opts.Only, err = nodeStrings(value)
		case keyExcept:
			opts.Except, err = nodeStrings(value)
		case keyMethods:
			opts.Methods, err = nodeStrings(value)
		case keyRequiredColumns:
			opts.RequiredColumns, err = nodeStrings(value)
		case keyInclude:
			opts.Include, err = specFromNode(value)
		case keyProcs:
			err = &loaderr.ConfigurationError{Value: key, Reason: "procs cannot be declared in a document"}
		default:
			if value.Kind != yaml.MappingNode {
				continue
			}
			var typed Options
			typed, err = optionsFromNode(value)
			if err == nil {
				if opts.Types == nil {
					opts.Types = make(map[string]Options)
				}
				opts.Types[strings.ToLower(key)] = typed
			}
		}
		if err != nil {
			return Options{}, err
		}
	}
	return opts, nil
}

func nodeStrings(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return []string{node.Value}, nil
	case yaml.SequenceNode:
		var out []string
		if err := node.Decode(&out); err != nil {
			return nil, &loaderr.ConfigurationError{Value: node.Value, Reason: err.Error()}
		}
		return out, nil
	default:
		return nil, loaderr.Unrecognized(node.Value)
	}
}
