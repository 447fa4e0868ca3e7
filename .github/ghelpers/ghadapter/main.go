package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/xerrors"
)

func main() {
	if len(os.Args) < 2 {
		os.Exit(1)
	}

	var args []string
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}

	cmd := exec.Command(os.Args[1], args...)
	cmd.Stdin = os.Stdin
	cmd.Stderr = os.Stderr

	exitCode := 0
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		exitCode = exitErr.ExitCode()
	}
	_, _ = os.Stdout.Write(output)

	if githubOutput := os.Getenv("GITHUB_OUTPUT"); githubOutput != "" {
		if err := appendOutputs(githubOutput, output); err != nil {
			fmt.Fprintln(os.Stderr, err)
			if exitCode == 0 {
				exitCode = 1
			}
		}
	}

	os.Exit(exitCode)
}

func appendOutputs(filename string, output []byte) error {
	var result map[string]any
	if err := json.Unmarshal(output, &result); err != nil {
		return xerrors.Errorf("failed to parse command output: %w", err)
	}

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return xerrors.Errorf("failed to open %s: %w", filename, err)
	}
	defer f.Close()

	return writeOutputs(f, result)
}

// writeOutputs writes one key=value line per top-level key in key order.
// Strings are written as is, everything else JSON encoded.
func writeOutputs(w io.Writer, result map[string]any) error {
	keys := maps.Keys(result)
	slices.Sort(keys)

	for _, key := range keys {
		var value string
		switch v := result[key].(type) {
		case string:
			value = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return xerrors.Errorf("failed to encode %s: %w", key, err)
			}
			value = string(b)
		}

		if strings.Contains(value, "\n") {
			if _, err := fmt.Fprintf(w, "%s<<EOF\n%s\nEOF\n", key, value); err != nil {
				return xerrors.Errorf("failed to write %s: %w", key, err)
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%s=%s\n", key, value); err != nil {
			return xerrors.Errorf("failed to write %s: %w", key, err)
		}
	}
	return nil
}
