package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/reactor/internal/config"
	"github.com/roach88/reactor/internal/demo"
	"github.com/roach88/reactor/internal/harness"
)

// FileValidation is the validation result of one file.
type FileValidation struct {
	Path   string   `json:"path"`
	Kind   string   `json:"kind"` // "config" or "scenario"
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate config files and scenarios without running them",
		Long: `Validate CUE config files and YAML scenarios.

.cue files are checked against the config schema. .yaml and .yml files
are parsed as scenarios, and their reactor must be registered.

Exit codes:
  0 - All files valid
  1 - One or more files invalid
  2 - Command error (file not found, unsupported extension)

Examples:
  reactor validate reactor.cue
  reactor validate scenarios/counter.yaml scenarios/search.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	registry := demo.Default()

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(paths))}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return NewExitError(ExitCommandError, fmt.Sprintf("file not found: %s", path))
		}

		formatter.VerboseLog("Validating %s", path)
		fv, err := validateFile(path, registry)
		if err != nil {
			return WrapExitError(ExitCommandError, "cannot validate "+path, err)
		}
		if !fv.Valid {
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	var failure *CLIError
	if !result.Valid {
		failure = &CLIError{Code: CodeInvalid, Message: "validation failed"}
	}
	err := formatter.Report(result, failure, func(w io.Writer) {
		outputValidateText(w, result)
	})
	if err != nil {
		return err
	}

	if !result.Valid {
		// Validation failures = exit code 1
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

// validateFile checks one file by extension. The error is for files that
// cannot be validated at all.
func validateFile(path string, registry *demo.Registry) (FileValidation, error) {
	switch filepath.Ext(path) {
	case ".cue":
		fv := FileValidation{Path: path, Kind: "config", Valid: true}
		if err := config.Validate(path); err != nil {
			fv.Valid = false
			fv.Errors = []string{err.Error()}
		}
		return fv, nil

	case ".yaml", ".yml":
		fv := FileValidation{Path: path, Kind: "scenario", Valid: true}
		scenario, err := harness.LoadScenario(path)
		if err != nil {
			fv.Valid = false
			fv.Errors = []string{err.Error()}
			return fv, nil
		}
		if _, ok := registry.Lookup(scenario.Reactor); !ok {
			fv.Valid = false
			fv.Errors = []string{fmt.Sprintf("unknown reactor %q (registered: %v)", scenario.Reactor, registry.Names())}
		}
		return fv, nil

	default:
		return FileValidation{}, fmt.Errorf("unsupported file type %q: want .cue, .yaml or .yml", filepath.Ext(path))
	}
}

func outputValidateText(w io.Writer, result ValidationResult) {
	for _, f := range result.Files {
		if f.Valid {
			fmt.Fprintf(w, "✓ %s (%s)\n", f.Path, f.Kind)
			continue
		}
		fmt.Fprintf(w, "✗ %s (%s)\n", f.Path, f.Kind)
		for _, e := range f.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	if result.Valid {
		fmt.Fprintln(w, "✓ All files valid")
	} else {
		fmt.Fprintln(w, "✗ Validation failed")
	}
}
