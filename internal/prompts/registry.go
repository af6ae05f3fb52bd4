// Package prompts holds the named prompt templates used by the conversation
// steps. Defaults are compiled in; a TOML file may override any of them.
package prompts

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/BurntSushi/toml"
)

// Prompt names.
const (
	Welcome     = "welcome"
	Supervisor  = "supervisor"
	Discrepancy = "discrepancy"
	Guidance    = "guidance"
	Feedback    = "feedback"
	Grading     = "grading"
	Finalize    = "finalize"
	Summarize   = "summarize"
)

// ErrUnknownPrompt is returned when a prompt name is not registered.
var ErrUnknownPrompt = errors.New("prompts: unknown prompt") //nolint:gochecknoglobals // sentinel error

//go:embed defaults.toml
var defaultsTOML string

// Prompt is one system/user template pair as written in TOML.
type Prompt struct {
	System string `toml:"system"`
	User   string `toml:"user"`
}

type file struct {
	Prompts map[string]Prompt `toml:"prompts"`
}

type compiled struct {
	system *template.Template
	user   *template.Template
}

// Data is everything a template may reference. Steps fill in what they need.
type Data struct {
	UserName         string
	SkillName        string
	SkillDescription string
	Grades           string
	Transcript       string
	Scratchpad       string
	PriorGrade       string
	StatedGrade      string
	Assessment       string
	Today            string
	Irregularities   int
	Threshold        int
	MaxTransitions   int
	Text             string
}

// Rendered is a prompt pair ready to send.
type Rendered struct {
	System string
	User   string
}

// Registry maps prompt names to parsed templates. It is safe for concurrent use
// once built.
type Registry struct {
	prompts map[string]compiled
}

// Default returns a registry holding only the built-in prompts.
func Default() (*Registry, error) {
	return build(map[string]Prompt{})
}

// Load returns the built-in prompts overridden by the entries of the TOML file
// at path. An empty path is the same as Default.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompts.Load: read %s: %w", path, err)
	}

	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("prompts.Load: parse %s: %w", path, err)
	}

	return build(f.Prompts)
}

func build(overrides map[string]Prompt) (*Registry, error) {
	var defaults file
	if _, err := toml.Decode(defaultsTOML, &defaults); err != nil {
		return nil, fmt.Errorf("prompts.build: parse defaults: %w", err)
	}

	merged := defaults.Prompts
	for name, p := range overrides {
		base, ok := merged[name]
		if !ok {
			return nil, fmt.Errorf("prompts.build: %q: %w", name, ErrUnknownPrompt)
		}
		if p.System != "" {
			base.System = p.System
		}
		if p.User != "" {
			base.User = p.User
		}
		merged[name] = base
	}

	r := &Registry{prompts: make(map[string]compiled, len(merged))}
	for name, p := range merged {
		sys, err := template.New(name + ".system").Option("missingkey=error").Parse(p.System)
		if err != nil {
			return nil, fmt.Errorf("prompts.build: %s system: %w", name, err)
		}
		usr, err := template.New(name + ".user").Option("missingkey=error").Parse(p.User)
		if err != nil {
			return nil, fmt.Errorf("prompts.build: %s user: %w", name, err)
		}
		r.prompts[name] = compiled{system: sys, user: usr}
	}

	return r, nil
}

// Render executes the named prompt against data.
func (r *Registry) Render(name string, data Data) (Rendered, error) {
	c, ok := r.prompts[name]
	if !ok {
		return Rendered{}, fmt.Errorf("prompts.Registry.Render: %q: %w", name, ErrUnknownPrompt)
	}

	var sys, usr strings.Builder
	if err := c.system.Execute(&sys, data); err != nil {
		return Rendered{}, fmt.Errorf("prompts.Registry.Render: %s system: %w", name, err)
	}
	if err := c.user.Execute(&usr, data); err != nil {
		return Rendered{}, fmt.Errorf("prompts.Registry.Render: %s user: %w", name, err)
	}

	return Rendered{
		System: strings.TrimSpace(sys.String()),
		User:   strings.TrimSpace(usr.String()),
	}, nil
}

// Names lists the registered prompt names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.prompts))
	for name := range r.prompts {
		names = append(names, name)
	}
	return names
}
