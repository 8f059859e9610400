package rar

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Defacto2/archivist/runner"
)

// Detail is one member of a technical listing.
type Detail struct {
	Name string
	Dir  bool
	Size int64
}

// Details returns the technical listing of the archive. Unlike List, the
// program flags directories here, so no elision is needed to tell them apart.
func (b *Backend) Details(ctx context.Context, archive string) ([]Detail, error) {
	tool, err := b.Tool()
	if err != nil {
		return nil, err
	}
	var (
		mu      sync.Mutex
		details []Detail
	)
	stderr := tail{}
	status, err := b.runner.Run(ctx, runner.Command{
		Args:    []string{tool, listTechnical, noComments, archive},
		Timeout: b.timeouts.List,
		OnStdout: func(line string) {
			key, val, ok := field(line)
			if !ok {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch key {
			case "Name":
				details = append(details, Detail{Name: strings.ReplaceAll(val, "\\", "/")})
			case "Type":
				if n := len(details); n > 0 {
					details[n-1].Dir = strings.EqualFold(val, "Directory")
				}
			case "Size":
				if n := len(details); n > 0 {
					details[n-1].Size, _ = strconv.ParseInt(val, 10, 64)
				}
			}
		},
		OnStderr: stderr.add,
	})
	if err != nil {
		return nil, fmt.Errorf("rar details %w", err)
	}
	if status.Code != exitSuccess && status.Code != exitWarning {
		return nil, stderr.err(tool, status.Code)
	}
	return details, nil
}

// field splits a "Key: value" line of a technical listing.
func field(line string) (string, string, bool) {
	key, val, ok := strings.Cut(strings.TrimSpace(line), ":")
	if !ok || key == "" || strings.ContainsAny(key, " \t") {
		return "", "", false
	}
	return key, strings.TrimSpace(val), true
}
