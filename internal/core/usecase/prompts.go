package usecase

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vessellink/veddy/internal/core/domain"
	"github.com/vessellink/veddy/internal/core/ports"
)

//go:embed prompts.yaml
var promptAssets []byte

type promptFile struct {
	System      string            `yaml:"system"`
	TableSuffix string            `yaml:"table_suffix"`
	Templates   map[string]string `yaml:"templates"`
}

// PromptLibrary holds the per-mode prompt templates loaded from the embedded
// asset file. Each mode maps to exactly one user template; table modes get
// the table suffix appended to the system prompt.
type PromptLibrary struct {
	system map[domain.GenerationMode]string
	user   map[domain.GenerationMode]string
}

var allModes = []domain.GenerationMode{
	domain.ModeNormal,
	domain.ModeTable,
	domain.ModeComparison,
	domain.ModeComparisonTable,
}

func LoadPrompts() (*PromptLibrary, error) {
	var file promptFile
	if err := yaml.Unmarshal(promptAssets, &file); err != nil {
		return nil, fmt.Errorf("parse prompt assets: %w", err)
	}
	if strings.TrimSpace(file.System) == "" {
		return nil, fmt.Errorf("prompt assets: missing system prompt")
	}

	lib := &PromptLibrary{
		system: make(map[domain.GenerationMode]string, len(allModes)),
		user:   make(map[domain.GenerationMode]string, len(allModes)),
	}
	for _, mode := range allModes {
		tmpl, ok := file.Templates[string(mode)]
		if !ok || strings.TrimSpace(tmpl) == "" {
			return nil, fmt.Errorf("prompt assets: missing template for mode %q", mode)
		}
		lib.user[mode] = tmpl
		system := file.System
		if mode == domain.ModeTable || mode == domain.ModeComparisonTable {
			system = strings.TrimRight(system, "\n") + "\n" + file.TableSuffix
		}
		lib.system[mode] = system
	}
	return lib, nil
}

// PromptVars are the values interpolated into a template.
type PromptVars struct {
	Query   string
	Context string
	History string
	Topics  []string
}

// Messages renders the chat turns for one generation request.
func (l *PromptLibrary) Messages(mode domain.GenerationMode, vars PromptVars) ([]ports.ChatMessage, error) {
	tmpl, ok := l.user[mode]
	if !ok {
		return nil, fmt.Errorf("unknown generation mode %q", mode)
	}

	history := vars.History
	if strings.TrimSpace(history) == "" {
		history = "(이전 대화 없음)"
	}
	replacer := strings.NewReplacer(
		"{query}", vars.Query,
		"{context}", vars.Context,
		"{history}", history,
		"{topics}", strings.Join(vars.Topics, " vs "),
	)
	return []ports.ChatMessage{
		{Role: ports.RoleSystem, Content: l.system[mode]},
		{Role: ports.RoleUser, Content: replacer.Replace(tmpl)},
	}, nil
}
