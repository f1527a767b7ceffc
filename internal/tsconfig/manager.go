// Package tsconfig implements the configuration manager: a deep-merged
// preferences object, the configure/compilerOptions emission tsserver
// expects on startup and on workspace/didChangeConfiguration, and the
// autoImportFileExcludePatterns normalization rules.
package tsconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gjsonschema "github.com/google/jsonschema-go/jsonschema"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/typescript-language-server/tsla/internal/tserr"
)

// CompilerOptions is the implicit-project compiler configuration emitted as
// the options of the compilerOptionsForInferredProjects request
type CompilerOptions struct {
	Module string `koanf:"module"`
	Target string `koanf:"target"`
	Jsx string `koanf:"jsx"`
	ModuleResolution string `koanf:"moduleResolution"`
	AllowJs bool `koanf:"allowJs"`
	AllowNonTsExtensions bool `koanf:"allowNonTsExtensions"`
	AllowSyntheticDefaultImports bool `koanf:"allowSyntheticDefaultImports"`
	ResolveJsonModule bool `koanf:"resolveJsonModule"`
}

// DefaultCompilerOptions mirrors published defaults.
func DefaultCompilerOptions() CompilerOptions {
	return CompilerOptions{
		Module: "ESNext",
		Target: "ES2020",
		Jsx: "React",
		ModuleResolution: "Node",
		AllowJs: true,
		AllowNonTsExtensions: true,
		AllowSyntheticDefaultImports: true,
		ResolveJsonModule: true,
	}
}

// Preferences mirrors tsserver's user preferences object; only the fields
// this adapter cares about are typed, and only these typed fields are sent
// to tsserver. Any other preference key in a payload is not forwarded.
type Preferences struct {
	AutoImportFileExcludePatterns []string `koanf:"autoImportFileExcludePatterns"`
	IncludeCompletionsForModuleExports bool `koanf:"includeCompletionsForModuleExports"`
	ImportModuleSpecifierPreference string `koanf:"importModuleSpecifierPreference"`
}

// Notifier sends the configure and compilerOptionsForInferredProjects
// requests to tsserver.
type Notifier interface {
	Notify(ctx context.Context, command string, args any) error
}

// configureArgs mirrors tsserver's "configure" command arguments.
type configureArgs struct {
	HostInfo string `json:"hostInfo"`
	FormatOptions any `json:"formatOptions,omitempty"`
	Preferences Preferences `json:"preferences"`
}

type compilerOptionsArgs struct {
	Options CompilerOptions `json:"options"`
}

// Manager holds the merged configuration and drives the configure/
// compilerOptionsForInferredProjects requests
type Manager struct {
	notifier Notifier
	schema *gjsonschema.Resolved

	k *koanf.Koanf
	formatOptions any
	compiler CompilerOptions
	workspaceRoot string
}

// payloadSchema constrains the shape of initializationOptions and
// didChangeConfiguration payloads accepted from the editor; it is
// deliberately permissive (additionalProperties allowed) since tsserver
// itself is the authority on individual preference names.
const payloadSchemaJSON = `{
	"type": "object",
	"properties": {
		"preferences": {"type": "object"},
		"formatOptions": {"type": "object"},
		"compilerOptions": {"type": "object"},
		"hostInfo": {"type": "string"}
	}
}`

// New builds a Manager with defaults already loaded.
func New(notifier Notifier, workspaceRoot string) (*Manager, error) {
	var schema gjsonschema.Schema
	if err := json.Unmarshal([]byte(payloadSchemaJSON), &schema); err != nil {
		return nil, fmt.Errorf("tsconfig: parsing payload schema: %w", err)
	}
	resolved, err := schema.Resolve(&gjsonschema.ResolveOptions{BaseURI: "tsla://config-payload"})
	if err != nil {
		return nil, fmt.Errorf("tsconfig: resolving payload schema: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultCompilerOptions(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("tsconfig: loading compiler defaults: %w", err)
	}

	m := &Manager{
		notifier: notifier,
		schema: resolved,
		k: k,
		compiler: DefaultCompilerOptions(),
		workspaceRoot: workspaceRoot,
	}
	return m, nil
}

// Validate checks an initializationOptions or didChangeConfiguration payload
// against the permissive payload schema, returning a ConfigError on failure
//
func (m *Manager) Validate(payload map[string]any) error {
	if err := m.schema.Validate(payload); err != nil {
		return tserr.Config("invalid configuration payload: %v", err)
	}
	return nil
}

// Apply deep-merges payload into the current configuration (later writes
// win per key) and re-emits configure and
// compilerOptionsForInferredProjects to tsserver.
func (m *Manager) Apply(ctx context.Context, payload map[string]any) error {
	if err := m.Validate(payload); err != nil {
		return err
	}

	if rawPrefs, ok := payload["preferences"].(map[string]any); ok {
		if err := m.k.Load(confmap.Provider(prefixKeys("preferences", rawPrefs), "."), nil); err != nil {
			return fmt.Errorf("tsconfig: merging preferences: %w", err)
		}
	}
	if rawCompiler, ok := payload["compilerOptions"].(map[string]any); ok {
		if err := m.k.Load(confmap.Provider(rawCompiler, "."), nil); err != nil {
			return fmt.Errorf("tsconfig: merging compiler options: %w", err)
		}
		var compiler CompilerOptions
		if err := m.k.Unmarshal("", &compiler); err != nil {
			return fmt.Errorf("tsconfig: unmarshalling merged compiler options: %w", err)
		}
		m.compiler = compiler
	}
	if fo, ok := payload["formatOptions"]; ok {
		m.formatOptions = fo
	}

	prefs := m.preferencesLocked()
	return m.emit(ctx, prefs)
}

// preferencesLocked rebuilds the Preferences struct from the merged koanf
// tree, normalizing autoImportFileExcludePatterns.
func (m *Manager) preferencesLocked() Preferences {
	var prefs Preferences
	_ = m.k.Unmarshal("preferences", &prefs)
	prefs.AutoImportFileExcludePatterns = NormalizeExcludePatterns(m.workspaceRoot, prefs.AutoImportFileExcludePatterns)
	return prefs
}

// emit sends configure and compilerOptionsForInferredProjects, on first
// successful server start and on every workspace/didChangeConfiguration.
func (m *Manager) emit(ctx context.Context, prefs Preferences) error {
	if err := m.notifier.Notify(ctx, "configure", configureArgs{
		HostInfo: "tsla",
		FormatOptions: m.formatOptions,
		Preferences: prefs,
	}); err != nil {
		return err
	}
	return m.notifier.Notify(ctx, "compilerOptionsForInferredProjects", compilerOptionsArgs{Options: m.compiler})
}

// InitialConfigure sends the default configuration to tsserver; called once
// on startup
func (m *Manager) InitialConfigure(ctx context.Context) error {
	return m.emit(ctx, m.preferencesLocked())
}

// NormalizeExcludePatterns implements published rules: absolute
// paths pass through; "*"-prefixed patterns become "/<pattern>"; "./"-relative
// patterns are joined with the workspace root; everything else is prefixed
// "/**/".
func NormalizeExcludePatterns(workspaceRoot string, patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, normalizeOnePattern(workspaceRoot, p))
	}
	return out
}

func normalizeOnePattern(workspaceRoot, p string) string {
	switch {
	case strings.HasPrefix(p, "/"):
		return p
	case strings.HasPrefix(p, "*"):
		return "/" + p
	case strings.HasPrefix(p, "./"):
		return strings.TrimSuffix(workspaceRoot, "/") + "/" + strings.TrimPrefix(p, "./")
	default:
		return "/**/" + p
	}
}

// MatchesExcludePattern reports whether filePath, or a directory containing
// it, matches any of the already normalized exclude patterns.
func MatchesExcludePattern(filePath string, normalizedPatterns []string) bool {
	target := strings.TrimPrefix(filePath, "/")
	for _, pattern := range normalizedPatterns {
		glob := strings.TrimPrefix(pattern, "/")
		for _, candidate := range []string{glob, glob + "/**"} {
			ok, err := doublestar.Match(candidate, target)
			if err == nil && ok {
				return true
			}
		}
	}
	return false
}

// prefixKeys namespaces every key in m under prefix, so a "preferences"
// payload subtree merges into the koanf.Koanf's "preferences.*" keys rather
// than colliding with compilerOptions at the root.
func prefixKeys(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[prefix+"."+k] = v
	}
	return out
}
