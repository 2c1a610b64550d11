// Package preset holds named launch templates for local MCP servers.
//
// A preset renders a shell-style command line from a pattern with two
// placeholders, {main_cmd_options} and {mcp_params}. Params may be extended
// with an override string, after which the command line is rendered again and
// re-tokenized into a command and argument list.
package preset

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kballard/go-shellquote"
)

const (
	optionsPlaceholder = "{main_cmd_options}"
	paramsPlaceholder  = "{mcp_params}"
)

// Preset is a reusable launch template for a local tool provider.
type Preset struct {
	Name        string
	Pattern     string // e.g. "npx {main_cmd_options} @scope/server {mcp_params}"
	MainOptions string
	Params      string
}

// WithAppendedParams returns a copy of p whose Params are extended with
// extra. A blank extra leaves Params unchanged; when Params is empty the
// trimmed extra becomes the whole parameter string. p is never modified.
func (p Preset) WithAppendedParams(extra string) Preset {
	extra = strings.TrimSpace(extra)
	if extra == "" {
		return p
	}

	out := p
	if p.Params != "" {
		out.Params = p.Params + " " + extra
	} else {
		out.Params = extra
	}

	return out
}

// CommandLine renders the pattern with the preset's options and params.
func (p Preset) CommandLine() string {
	r := strings.NewReplacer(
		optionsPlaceholder, p.MainOptions,
		paramsPlaceholder, p.Params,
	)
	return strings.TrimSpace(r.Replace(p.Pattern))
}

// Argv renders the command line and splits it into a command and its args.
func (p Preset) Argv() (string, []string, error) {
	words, err := Tokenize(p.CommandLine())
	if err != nil {
		return "", nil, fmt.Errorf("preset %q: %w", p.Name, err)
	}
	if len(words) == 0 {
		return "", nil, fmt.Errorf("preset %q: empty command line", p.Name)
	}
	return words[0], words[1:], nil
}

// Tokenize splits a command line into words using POSIX shell quoting rules.
// Quotes and backslash escapes are honoured; no expansion is performed.
func Tokenize(line string) ([]string, error) {
	words, err := shellquote.Split(line)
	if err != nil {
		return nil, fmt.Errorf("tokenize %q: %w", line, err)
	}
	return words, nil
}

// Catalog is a set of presets keyed by name.
type Catalog map[string]Preset

// Builtins returns a fresh catalog with the stock presets.
func Builtins() Catalog {
	return Catalog{
		"filesystem": {
			Name:        "filesystem",
			Pattern:     "npx {main_cmd_options} @modelcontextprotocol/server-filesystem {mcp_params}",
			MainOptions: "-y",
			Params:      ".",
		},
		"fetch": {
			Name:    "fetch",
			Pattern: "uvx {main_cmd_options} mcp-server-fetch {mcp_params}",
		},
	}
}

// Lookup returns the named preset.
func (c Catalog) Lookup(name string) (Preset, bool) {
	p, ok := c[name]
	return p, ok
}

// Merge returns a new catalog containing c overlaid with others; later
// presets replace earlier ones with the same name.
func (c Catalog) Merge(others ...Preset) (Catalog, error) {
	out := make(Catalog, len(c)+len(others))
	for k, v := range c {
		out[k] = v
	}

	for _, p := range others {
		if p.Name == "" {
			return nil, errors.New("preset: name is required")
		}
		if strings.TrimSpace(p.Pattern) == "" {
			return nil, fmt.Errorf("preset %q: pattern is required", p.Name)
		}
		out[p.Name] = p
	}

	return out, nil
}

// Names returns the preset names sorted alphabetically.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for k := range c {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
