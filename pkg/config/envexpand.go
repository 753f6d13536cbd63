package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv expands environment variables in YAML content using Go templates.
// Uses {{.VAR_NAME}} syntax to avoid collision with $ in literal values.
//
// Catalog entries frequently contain $ characters that must survive as-is:
//   - start commands: ["/usr/bin/env", "CUDA_VISIBLE_DEVICES=$GPUS", …]
//   - shell-ish container args carried opaquely through the driver
//
// Examples:
//   - {{.MODELS_DIR}}/qwen → value of MODELS_DIR with /qwen appended
//   - {{.HF_TOKEN}} → value of HF_TOKEN environment variable
//
// Missing variables expand to empty string (unless the template is
// malformed). Validation catches required fields left empty afterwards.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		// Not template syntax — pass YAML through untouched
		return data
	}

	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok && key != "" {
			env[key] = value
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, env); err != nil {
		return data
	}

	return buf.Bytes()
}
