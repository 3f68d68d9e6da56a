package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// CommandFile is the on-disk shape of a command list.
type CommandFile struct {
	Commands []string `json:"commands" yaml:"commands"`
}

// LoadCommands reads the ordered command list from path. JSON files are
// decoded strictly; anything else is read as YAML.
func LoadCommands(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CommandFileError{Path: path, Err: err}
	}

	var cf CommandFile
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &cf)
	} else {
		err = yaml.Unmarshal(data, &cf)
	}
	if err != nil {
		return nil, &CommandFileError{Path: path, Err: fmt.Errorf("parse: %w", err)}
	}

	if len(cf.Commands) == 0 {
		return nil, &CommandFileError{Path: path, Err: ErrNoCommands}
	}
	for i, cmd := range cf.Commands {
		if strings.TrimSpace(cmd) == "" {
			return nil, &CommandFileError{Path: path, Err: fmt.Errorf("command %d is blank", i)}
		}
	}
	return cf.Commands, nil
}
