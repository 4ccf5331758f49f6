package schema

// AgentKind names one of the four MAKER agent roles. No inheritance: a table of AgentConfig keyed by kind.
type AgentKind string

const (
	AgentDecomposition            AgentKind = "decomposition"
	AgentDecompositionDiscriminator AgentKind = "decomposition_discriminator"
	AgentSolver                   AgentKind = "solver"
	AgentSolutionDiscriminator    AgentKind = "solution_discriminator"
)

// RedFlaggerConfig configures one entry of a red-flag pipeline.
// Params holds the kind-specific keys (max_tokens, language, model, ...)
// decoded generically since each built-in kind shapes them differently.
type RedFlaggerConfig struct {
	Type   string         `json:"type" yaml:"type"`
	Params map[string]any `json:"params,omitempty" yaml:",inline"`
}

// AgentConfig is the per-role configuration loaded from the domain's YAML
// config.
type AgentConfig struct {
	PromptTemplate string             `json:"prompt_template" yaml:"prompt_template"`
	Model          string             `json:"model" yaml:"model"`
	Samples        int                `json:"samples,omitempty" yaml:"samples"`
	K              int                `json:"k,omitempty" yaml:"k,omitempty"`
	RedFlaggers    []RedFlaggerConfig `json:"red_flaggers,omitempty" yaml:"red_flaggers,omitempty"`
}

// StepGranularity bounds decide when a step is atomic enough to skip
// decomposition.
type StepGranularity struct {
	MaxFiles        int `json:"max_files,omitempty" yaml:"max_files"`
	MaxLinesChanged int `json:"max_lines_changed,omitempty" yaml:"max_lines_changed"`
	MaxDepth        int `json:"max_depth,omitempty" yaml:"max_depth,omitempty"`
}

// DomainConfig is one `domains.<name>` entry from the YAML config surface.
type DomainConfig struct {
	Name        string                    `json:"name" yaml:"name"`
	Agents      map[AgentKind]AgentConfig `json:"agents" yaml:"agents"`
	Granularity StepGranularity           `json:"step_granularity" yaml:"step_granularity"`
	Verifier    string                    `json:"verifier" yaml:"verifier"`
	Applier     string                    `json:"applier" yaml:"applier"`
	RedFlaggers []RedFlaggerConfig        `json:"red_flaggers,omitempty" yaml:"red_flaggers,omitempty"`
}

// Applier kinds recognized by ApplyVerifyTask.
const (
	ApplierOverwriteFile = "overwrite_file"
	ApplierPatchFile     = "patch_file"
)
