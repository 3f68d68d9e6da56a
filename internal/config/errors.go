package config

import (
	"errors"
	"fmt"
)

// ErrNoCommands is returned when a command file lists nothing to run.
var ErrNoCommands = errors.New("command list is empty")

// ConfigLoadError reports a config file that could not be read, parsed or
// validated.
type ConfigLoadError struct {
	Path string
	Err  error
}

func (e *ConfigLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load config: %v", e.Err)
	}
	return fmt.Sprintf("load config %s: %v", e.Path, e.Err)
}

func (e *ConfigLoadError) Unwrap() error { return e.Err }

// CommandFileError reports a command file that could not be used.
type CommandFileError struct {
	Path string
	Err  error
}

func (e *CommandFileError) Error() string {
	return fmt.Sprintf("command file %s: %v", e.Path, e.Err)
}

func (e *CommandFileError) Unwrap() error { return e.Err }

// CredentialMissing reports an unset credential environment variable.
type CredentialMissing struct {
	Var string
}

func (e *CredentialMissing) Error() string {
	return fmt.Sprintf("environment variable %s is not set", e.Var)
}
