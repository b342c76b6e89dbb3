package app

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"alchemist/internal/config"
	"alchemist/internal/domain"
	"alchemist/internal/engine"
	"alchemist/internal/events"
	"alchemist/internal/ingest"
	"alchemist/internal/session"
)

// Options describe where a session's config and data come from.
type Options struct {
	Workspace string
	// ConfigPath overrides <workspace>/alchemist.yml.
	ConfigPath string
	// Files overrides discovery; empty fields are discovered in Workspace.
	Files     ingest.Files
	RulesFile string
	// ActivityLog receives JSON-lines session events when set.
	ActivityLog io.Writer
	Logger      *log.Logger
}

// ResolveConfig reads the explicit config path when given, otherwise the
// workspace config, falling back to defaults when the workspace has none.
func ResolveConfig(workspace, override string) (*config.Config, error) {
	if override != "" {
		cfg, err := config.FromFile(override)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", override, err)
		}
		return cfg, nil
	}
	return config.LoadOptional(workspace)
}

// DiscoverFiles fills empty entries of files with clients/workers/tasks files
// found in workspace. CSV wins over XLSX, XLSX over JSON.
func DiscoverFiles(workspace string, files ingest.Files) ingest.Files {
	find := func(current, base string) string {
		if current != "" {
			return current
		}
		for _, ext := range []string{".csv", ".xlsx", ".json"} {
			p := filepath.Join(workspace, base+ext)
			if st, err := os.Stat(p); err == nil && !st.IsDir() {
				return p
			}
		}
		return ""
	}
	return ingest.Files{
		Clients: find(files.Clients, "clients"),
		Workers: find(files.Workers, "workers"),
		Tasks:   find(files.Tasks, "tasks"),
	}
}

// OpenSession resolves config, reads any data files and rules, and returns a
// validated session.
func OpenSession(opts Options) (*session.Session, *config.Config, error) {
	workspace := opts.Workspace
	if workspace == "" {
		workspace = "."
	}
	cfg, err := ResolveConfig(workspace, opts.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	eng := engine.New(cfg)
	eng.Logger = opts.Logger
	s := session.New(eng, &events.Writer{Out: opts.ActivityLog})

	files := DiscoverFiles(workspace, opts.Files)
	if files != (ingest.Files{}) {
		snap, err := ingest.Parser{FillMissingIDs: cfg.Ingest.FillMissingIDs}.LoadSnapshot(files)
		if err != nil {
			return nil, nil, err
		}
		s.Load(snap)
	}

	ruleList, err := LoadRules(cfg, opts.RulesFile)
	if err != nil {
		return nil, nil, err
	}
	if len(ruleList) > 0 {
		s.SetRules(ruleList)
	}
	return s, cfg, nil
}

// LoadRules returns the config rules followed by the rules in path, if any.
func LoadRules(cfg *config.Config, path string) ([]domain.BusinessRule, error) {
	out, err := cfg.BusinessRules()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return out, nil
	}
	extra, err := config.RulesFromFile(path)
	if err != nil {
		return nil, err
	}
	return append(out, extra...), nil
}
