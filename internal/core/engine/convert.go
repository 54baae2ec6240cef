package engine

import (
	"errors"
	"fmt"

	"liuproxy_prober/internal/shared/types"
)

// Converter turns an input node into the configuration submitted to the core.
type Converter interface {
	Convert(node *types.ProxyNode) (map[string]any, error)
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(node *types.ProxyNode) (map[string]any, error)

func (f ConverterFunc) Convert(node *types.ProxyNode) (map[string]any, error) { return f(node) }

var errMissingField = errors.New("missing required field")

// PassthroughConverter forwards the node's stable config after checking the fields
// every core needs to open a listener.
type PassthroughConverter struct{}

func (PassthroughConverter) Convert(node *types.ProxyNode) (map[string]any, error) {
	if node == nil {
		return nil, errors.New("nil node")
	}
	for _, key := range []string{"type", "server", "port"} {
		v, ok := node.Config[key]
		if !ok || v == nil || v == "" {
			return nil, fmt.Errorf("%w: %s", errMissingField, key)
		}
	}
	out := make(map[string]any, len(node.Config)+1)
	for k, v := range node.Config {
		out[k] = v
	}
	out["name"] = node.Name
	return out, nil
}
