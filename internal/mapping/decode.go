package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"
)

// rawSettings is the mapping-file form of one directive.
type rawSettings struct {
	Type    string `yaml:"type"`
	Mapping struct {
		Destination string `yaml:"destination"`
		PrimaryKey  bool   `yaml:"primaryKey"`
	} `yaml:"mapping"`
	Delimiter    string    `yaml:"delimiter"`
	ForceType    bool      `yaml:"forceType"`
	Destination  string    `yaml:"destination"`
	TableMapping yaml.Node `yaml:"tableMapping"`
	ParentKey    struct {
		Disable     bool   `yaml:"disable"`
		Destination string `yaml:"destination"`
		PrimaryKey  bool   `yaml:"primaryKey"`
	} `yaml:"parentKey"`
}

// Parse decodes a mapping file. JSON objects and YAML documents are both
// accepted; key order is preserved in either case.
func Parse(data []byte) (Spec, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ConfigErrorf("mapping is empty")
	}

	var (
		node *yaml.Node
		err  error
	)
	if trimmed[0] == '{' || trimmed[0] == '[' {
		node, err = jsonToNode(trimmed)
	} else {
		var doc yaml.Node
		err = yaml.Unmarshal(trimmed, &doc)
		node = &doc
	}
	if err != nil {
		return nil, &ConfigError{Message: "cannot decode mapping", Cause: err}
	}
	return FromNode(node)
}

// FromNode decodes a mapping from a YAML node tree.
func FromNode(node *yaml.Node) (Spec, error) {
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return Spec{}, nil
		}
		node = node.Content[0]
	}
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	switch {
	case node.Kind == 0, node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null":
		return Spec{}, nil
	case node.Kind != yaml.MappingNode:
		return nil, ConfigErrorf("mapping must be an object, got %s", node.ShortTag())
	}

	spec := make(Spec, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		path := node.Content[i].Value
		d, err := decodeDirective(path, node.Content[i+1])
		if err != nil {
			return nil, err
		}
		spec = append(spec, Entry{Path: path, Directive: d})
	}
	return spec, nil
}

func decodeDirective(path string, value *yaml.Node) (Directive, error) {
	switch value.Kind {
	case yaml.AliasNode:
		if value.Alias == nil {
			return nil, ConfigErrorf("setting for %q is a dangling alias", path)
		}
		return decodeDirective(path, value.Alias)
	case yaml.ScalarNode:
		if value.ShortTag() != "!!str" {
			return nil, ConfigErrorf("setting for %q must be a string or an object", path)
		}
		return Shorthand(value.Value), nil
	case yaml.MappingNode:
		var raw rawSettings
		if err := value.Decode(&raw); err != nil {
			return nil, &ConfigError{Message: fmt.Sprintf("invalid setting for %q", path), Cause: err}
		}
		return raw.directive(path)
	default:
		return nil, ConfigErrorf("setting for %q must be a string or an object", path)
	}
}

func (raw *rawSettings) directive(path string) (Directive, error) {
	switch raw.Type {
	case "", TypeColumn:
		return Column{
			Destination: raw.Mapping.Destination,
			PrimaryKey:  raw.Mapping.PrimaryKey,
			Delimiter:   raw.Delimiter,
			ForceType:   raw.ForceType,
		}, nil
	case TypeUser:
		return User{
			Destination: raw.Mapping.Destination,
			PrimaryKey:  raw.Mapping.PrimaryKey,
		}, nil
	case TypeDate:
		return Date{
			Destination: raw.Mapping.Destination,
			Delimiter:   raw.Delimiter,
		}, nil
	case TypeTable:
		t := Table{
			Destination: raw.Destination,
			Delimiter:   raw.Delimiter,
			ParentKey:   ParentKey(raw.ParentKey),
		}
		if raw.TableMapping.Kind != 0 {
			child, err := FromNode(&raw.TableMapping)
			if err != nil {
				return nil, err
			}
			t.Mapping = child
		}
		return t, nil
	default:
		return nil, ConfigErrorf("unknown type %q for %q", raw.Type, path)
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Spec) UnmarshalYAML(value *yaml.Node) error {
	spec, err := FromNode(value)
	if err != nil {
		return err
	}
	*s = spec
	return nil
}

// UnmarshalJSON implements json.Unmarshaler keeping the key order of the document.
func (s *Spec) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*s = nil
		return nil
	}
	spec, err := Parse(trimmed)
	if err != nil {
		return err
	}
	*s = spec
	return nil
}

// jsonToNode builds a YAML node tree from a JSON document, token by token, so
// that object key order survives.
func jsonToNode(data []byte) (*yaml.Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	node, err := jsonValueNode(dec, tok)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after the mapping object")
	}
	return node, nil
}

func jsonValueNode(dec *json.Decoder, tok json.Token) (*yaml.Node, error) {
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key must be a string, got %v", keyTok)
				}
				valTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				val, err := jsonValueNode(dec, valTok)
				if err != nil {
					return nil, err
				}
				node.Content = append(node.Content, scalarNode("!!str", key), val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return node, nil
		case '[':
			node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			for dec.More() {
				itemTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				item, err := jsonValueNode(dec, itemTok)
				if err != nil {
					return nil, err
				}
				node.Content = append(node.Content, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return node, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", v)
	case string:
		return scalarNode("!!str", v), nil
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return scalarNode("!!int", v.String()), nil
		}
		return scalarNode("!!float", v.String()), nil
	case bool:
		return scalarNode("!!bool", strconv.FormatBool(v)), nil
	case nil:
		return scalarNode("!!null", "null"), nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

func scalarNode(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}
