package console

import (
	"encoding/json"
	"os"
)

// OutputStructOrJSON outputs a Go struct as either formatted console output or JSON
// based on the asJSON flag. This provides a unified interface for commands that
// support both console and JSON output modes.
//
// When asJSON is true, the struct is marshaled to JSON with indentation and written to stdout.
// When asJSON is false, the struct is rendered using RenderStruct and written to stdout.
//
// adw run uses this to print a sequencer.Outcome either way, depending on its
// --json flag:
//
//	err := console.OutputStructOrJSON(outcome, asJSON)
func OutputStructOrJSON(v interface{}, asJSON bool) error {
	if asJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	}

	// For console output, use RenderStruct
	output := RenderStruct(v)
	_, err := os.Stdout.WriteString(output)
	return err
}
