// Lint tool for klinscore YAML score definitions.
//
// Usage:
//   go run cmd/scorelint/main.go -dir ./scores
//
// This tool:
//   1. Reads every *.yaml definition in the directory
//   2. Runs the structural validator on each one
//   3. Prints every validation error, not just the first
//   4. Exits non-zero if any definition is invalid
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openclinical/klinscore/internal/domain"
	"github.com/openclinical/klinscore/internal/score"
)

func main() {
	dir := flag.String("dir", "./scores", "Directory of YAML score definitions")
	flag.Parse()

	entries, err := os.ReadDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: cannot read %s: %v\n", *dir, err)
		os.Exit(1)
	}

	checked := 0
	invalid := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		if strings.Contains(strings.ToLower(name), "template") {
			continue
		}

		checked++
		if !lintFile(filepath.Join(*dir, name)) {
			invalid++
		}
	}

	fmt.Printf("\n%d definitions checked, %d invalid\n", checked, invalid)
	if invalid > 0 {
		os.Exit(1)
	}
}

// lintFile reports whether the definition is valid, printing every
// problem found.
func lintFile(path string) bool {
	name := filepath.Base(path)

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("✗ %s: cannot read: %v\n", name, err)
		return false
	}

	var def domain.ScoreDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		fmt.Printf("✗ %s: invalid YAML: %v\n", name, err)
		return false
	}
	def.ID = strings.TrimSuffix(name, filepath.Ext(name))

	errs := score.Validate(&def)
	if len(errs) > 0 {
		fmt.Printf("✗ %s: %d problem(s)\n", name, len(errs))
		for _, e := range errs {
			fmt.Printf("    - %s\n", e.Error())
		}
		return false
	}

	fmt.Printf("✓ %s (%s, %d inputs)\n", name, def.Name, len(def.Inputs))
	return true
}
