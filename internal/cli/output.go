package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// structured reports whether machine-readable output was requested.
func (rt *runtime) structured() bool {
	return rt.jsonOut || rt.yamlOut
}

// writeOutput encodes v as JSON or YAML depending on the global flags.
func (rt *runtime) writeOutput(out io.Writer, v any) error {
	if rt.yamlOut {
		return writeYAML(out, v)
	}
	return writeJSON(out, v)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// writeYAML emits the same shape as the JSON output. Values are routed
// through their JSON encoding so custom marshalers apply.
func writeYAML(out io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("convert to yaml: %w", err)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}
