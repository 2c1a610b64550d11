// Package localtools provides read-only filesystem tools confined to a root
// directory. relay serves them over MCP with `relay serve-local`.
package localtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/germanamz/relay/pkg/tools/mcpserver"
	"github.com/germanamz/relay/pkg/tools/registry"
)

const maxReadSize = 10 << 20 // 10 MB

// FS exposes the files below Root. Paths that escape Root, including through
// symlinks, are rejected.
type FS struct {
	Root string
}

// New returns an FS rooted at dir.
func New(dir string) *FS {
	return &FS{Root: dir}
}

// Tools returns the tool set served by this FS.
func (f *FS) Tools() []mcpserver.Tool {
	return []mcpserver.Tool{f.listTool(), f.readTool()}
}

type pathInput struct {
	Path string `json:"path"`
}

type listEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

func (f *FS) listTool() mcpserver.Tool {
	return mcpserver.Tool{
		Descriptor: registry.Descriptor{
			Name:        "list_files",
			Description: "List entries in a directory (non-recursive). Returns JSON with name, type, and size. Path defaults to the root.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"Directory relative to the root"}}}`),
		},
		Handler: f.handleList,
	}
}

func (f *FS) handleList(_ context.Context, input json.RawMessage) (string, error) {
	var in pathInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("list_files: invalid input: %w", err)
	}

	if in.Path == "" {
		in.Path = "."
	}

	dir, err := os.OpenInRoot(f.Root, in.Path)
	if err != nil {
		return "", fmt.Errorf("list_files: %w", err)
	}
	defer dir.Close() //nolint:errcheck // read-only

	entries, err := dir.ReadDir(-1)
	if err != nil {
		return "", fmt.Errorf("list_files: %w", err)
	}
	slices.SortFunc(entries, func(a, b os.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})

	result := make([]listEntry, 0, len(entries))
	for _, e := range entries {
		info, infoErr := e.Info()
		if infoErr != nil {
			continue
		}

		typ := "file"
		if e.IsDir() {
			typ = "dir"
		}

		result = append(result, listEntry{Name: e.Name(), Type: typ, Size: info.Size()})
	}

	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("list_files: marshal: %w", err)
	}

	return string(data), nil
}

func (f *FS) readTool() mcpserver.Tool {
	return mcpserver.Tool{
		Descriptor: registry.Descriptor{
			Name:        "read_file",
			Description: "Read the contents of a file relative to the root. Returns the full file content as text.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File relative to the root"}},"required":["path"]}`),
		},
		Handler: f.handleRead,
	}
}

func (f *FS) handleRead(_ context.Context, input json.RawMessage) (string, error) {
	var in pathInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("read_file: invalid input: %w", err)
	}

	if in.Path == "" {
		return "", errors.New("read_file: path is required")
	}

	file, err := os.OpenInRoot(f.Root, in.Path)
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}
	defer file.Close() //nolint:errcheck // read-only

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("read_file: %s is a directory", in.Path)
	}

	data, err := io.ReadAll(io.LimitReader(file, maxReadSize+1))
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}

	if len(data) > maxReadSize {
		return "", errors.New("read_file: file exceeds maximum read size of 10 MB")
	}

	return string(data), nil
}
