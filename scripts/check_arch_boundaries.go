package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const modulePrefix = "transcript-cleaner/internal/"

// Leaf packages first. A package may import only what its entry lists.
var allowed = map[string][]string{
	"model":      nil,
	"segment":    nil,
	"transcript": nil,
	"runstore":   {"model"},
	"provider":   {"model", "segment"},
	"lint":       {"model", "segment"},
	"output":     {"model", "runstore"},
	"estimate":   {"provider", "segment"},
	"runner":     {"model", "provider", "runstore", "segment"},
	"history":    {"runner"},
	"control":    {"runstore"},
	"config":     {"provider", "runstore", "segment"},
	"cli": {
		"config", "control", "estimate", "history", "lint", "model",
		"output", "provider", "runner", "runstore", "segment", "transcript",
	},
}

func main() {
	violations, err := checkTree("internal")
	if err != nil {
		fmt.Fprintf(os.Stderr, "boundary walk failed: %v\n", err)
		os.Exit(1)
	}
	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "architecture boundary violations detected:")
		for _, v := range violations {
			fmt.Fprintf(os.Stderr, "- %s\n", v)
		}
		os.Exit(1)
	}
	fmt.Println("architecture boundary check: OK")
}

func checkTree(root string) ([]string, error) {
	var violations []string
	fset := token.NewFileSet()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		src := ownerPackage(root, path)
		if src == "" {
			return nil
		}
		deps, known := allowed[src]
		if !known {
			violations = append(violations, fmt.Sprintf("%s: package %q missing from allow list", path, src))
			return nil
		}

		file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, imp := range file.Imports {
			dst := internalPackage(strings.Trim(imp.Path.Value, `"`))
			if dst == "" || dst == src || slices.Contains(deps, dst) {
				continue
			}
			violations = append(violations, fmt.Sprintf("%s: %s -> %s is forbidden", path, src, dst))
		}
		return nil
	})
	return violations, err
}

func ownerPackage(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return ""
	}
	first, _, found := strings.Cut(filepath.ToSlash(rel), "/")
	if !found {
		return ""
	}
	return first
}

func internalPackage(importPath string) string {
	rest, ok := strings.CutPrefix(importPath, modulePrefix)
	if !ok {
		return ""
	}
	pkg, _, _ := strings.Cut(rest, "/")
	return pkg
}
