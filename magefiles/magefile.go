//go:build mage

// Package main provides build targets for foodform using Mage.
//
// Usage:
//
//	mage generate   Regenerate the templ components
//	mage build      Compile the foodform binary to bin/
//	mage test       Run all tests
//	mage cover      Run tests with a coverage profile
//	mage lint       Run go vet and golangci-lint
//	mage run        Build and start the web server
//	mage clean      Remove build artifacts
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binLint    = "golangci-lint"
	binaryName = "foodform"
	binaryDir  = "bin"
	cmdDir     = "./cmd/foodform"
	coverFile  = "coverage.out"
	templPkg   = "github.com/a-h/templ/cmd/templ@v0.3.960"
)

// Generate regenerates the *_templ.go files from the .templ sources.
func Generate() error {
	return sh.RunV(binGo, "run", templPkg, "generate", "./internal/web/templates")
}

// Build compiles the foodform binary to bin/.
func Build() error {
	mg.Deps(Generate)
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Test runs all tests.
func Test() error {
	return sh.RunV(binGo, "test", "./...")
}

// Cover runs all tests with the race detector and writes coverage.out.
func Cover() error {
	if err := sh.RunV(binGo, "test", "-race", "-coverprofile="+coverFile, "./..."); err != nil {
		return err
	}
	return sh.RunV(binGo, "tool", "cover", "-func="+coverFile)
}

// Golden regenerates the export golden files.
func Golden() error {
	return sh.RunV(binGo, "test", "./internal/export/...", "-update")
}

// Lint runs go vet and golangci-lint.
func Lint() error {
	if err := sh.RunV(binGo, "vet", "./..."); err != nil {
		return err
	}
	return sh.RunV(binLint, "run", "./...")
}

// Run builds the binary and starts the web server.
func Run() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binaryDir, binaryName), "serve")
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	if err := os.Remove(coverFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return sh.RunV(binGo, "clean")
}
