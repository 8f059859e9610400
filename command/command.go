// Package command lists the known archiving application names and resolves
// the vendor binaries from an install folder.
package command

// A note about unrar: On Linux there are incompatible variants of unrar.
// This package cannot use the common unrar-free application. It unfortunately, is
// incomplete and is incompatible with many .rar files this package needs to handle.
// Adding members requires the full rar application, unrar can only list and extract.
//
// When used on Linux, the rar application should provide the following copyright:
// "RAR 6.24 Copyright (c) 1993-2023 Alexander Roshal".

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	Rar    = "rar"     // Rar is the rar archiving command.
	RarExe = "Rar.exe" // RarExe is the rar archiving command on Windows.
)

var ErrToolNotAvailable = errors.New("archive tool is not available")

// Name returns the filename of the rar application for the goos platform.
// An empty goos uses the running platform.
func Name(goos string) string {
	if goos == "" {
		goos = runtime.GOOS
	}
	if goos == "windows" {
		return RarExe
	}
	return Rar
}

// Resolve returns the absolute path of the rar application inside the install folder.
// The tool is never looked up in the PATH, so a missing or unusable file
// returns ErrToolNotAvailable.
func Resolve(folder string) (string, error) {
	if folder == "" {
		return "", fmt.Errorf("%w: no tool folder is configured", ErrToolNotAvailable)
	}
	name := filepath.Join(folder, Name(""))
	abs, err := filepath.Abs(name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrToolNotAvailable, err)
	}
	inf, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrToolNotAvailable, err)
	}
	if !inf.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a file", ErrToolNotAvailable, abs)
	}
	if runtime.GOOS != "windows" && inf.Mode().Perm()&0o111 == 0 {
		return "", fmt.Errorf("%w: %s is not executable", ErrToolNotAvailable, abs)
	}
	return abs, nil
}
