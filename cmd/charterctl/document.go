package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alfredjeanlab/charters/internal/sanitize"
	"gopkg.in/yaml.v3"
)

// readDocument loads a charter document from path ("-" reads stdin). Files
// ending in .yaml or .yml are parsed as YAML; anything else must be JSON.
// The result is always a JSON object.
func readDocument(path string, stdin io.Reader) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlDocument(data)
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("document is not a JSON object: %w", err)
	}
	return json.RawMessage(data), nil
}

// yamlDocument converts a YAML mapping into JSON. Untagged timestamps are
// kept as the strings they were written as.
func yamlDocument(data []byte) (json.RawMessage, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	doc, err := sanitize.Document(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}
