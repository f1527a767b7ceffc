package tsversion

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// probeDirs is walked, one entry at a time, up from each workspace folder to
// the filesystem root
var probeDirs = []string{
	filepath.Join("node_modules", "typescript", "lib"),
	filepath.Join(".vscode", "pnpify", "typescript", "lib"),
	filepath.Join(".yarn", "sdks", "typescript", "lib"),
}

// Candidate is a resolved tsserver.js location together with its version.
type Candidate struct {
	ServerPath string
	Version ApiVersion
	Source string // "user" | "workspace" | "bundled"
}

// Resolver implements the three-tier resolution order (user-configured path,
// workspace node_modules, bundled fallback) and watches the winning
// candidate's directory for changes, signalling them on Changes. Nothing in
// this module consumes that signal, so a change on disk does not restart
// tsserver; a newly installed TypeScript version is picked up by the next
// Resolve.
type Resolver struct {
	log logrus.FieldLogger
	userPath string
	bundledPath string
	bundledVersion ApiVersion

	watcher *fsnotify.Watcher
	changes chan struct{}
}

// NewResolver constructs a Resolver. bundledPath/bundledVersion are the
// fallback shipped alongside this adapter's own binary.
func NewResolver(log logrus.FieldLogger, userPath, bundledPath string, bundledVersion ApiVersion) *Resolver {
	return &Resolver{
		log: log,
		userPath: userPath,
		bundledPath: bundledPath,
		bundledVersion: bundledVersion,
		changes: make(chan struct{}, 1),
	}
}

// Changes signals when the resolved candidate's backing directory changes on
// disk, so the supervisor can re-resolve and, if the version moved, restart.
func (r *Resolver) Changes() <-chan struct{} { return r.changes }

// Resolve walks the resolution order for the given workspace folders and
// returns the first candidate whose version parses.
func (r *Resolver) Resolve(ctx context.Context, workspaceFolders []string) (Candidate, error) {
	if r.userPath != "" {
		if v, err := versionFromServerPath(r.userPath); err == nil {
			r.watch(filepath.Dir(r.userPath))
			return Candidate{ServerPath: r.userPath, Version: v, Source: "user"}, nil
		} else {
			r.log.WithError(err).Warn("tsversion: user-configured tsserver.js has no readable version; falling back")
		}
	}

	for _, root := range workspaceFolders {
		if cand, ok := r.walkUp(root); ok {
			r.watch(filepath.Dir(cand.ServerPath))
			return cand, nil
		}
	}

	r.log.Warn("tsversion: no workspace TypeScript found; using the bundled version")
	return Candidate{ServerPath: r.bundledPath, Version: r.bundledVersion, Source: "bundled"}, nil
}

func (r *Resolver) walkUp(start string) (Candidate, bool) {
	dir := start
	for {
		for _, probe := range probeDirs {
			serverPath := filepath.Join(dir, probe, "tsserver.js")
			if v, err := versionFromServerPath(serverPath); err == nil {
				return Candidate{ServerPath: serverPath, Version: v, Source: "workspace"}, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Candidate{}, false
		}
		dir = parent
	}
}

// versionFromServerPath reads package.json from .../typescript/package.json
// (the published-package layout), falling back to a package.json sitting
// directly beside tsserver.js for a "built from source" dev layout.
func versionFromServerPath(serverPath string) (ApiVersion, error) {
	libDir := filepath.Dir(serverPath)
	for _, up := range []string{"..", "."} {
		pkgPath := filepath.Join(libDir, up, "package.json")
		if v, err := readPackageVersion(pkgPath); err == nil {
			return v, nil
		}
	}
	return ApiVersion{}, fmt.Errorf("tsversion: no package.json found near %s", serverPath)
}

func readPackageVersion(pkgPath string) (ApiVersion, error) {
	data, err := os.ReadFile(pkgPath)
	if err != nil {
		return ApiVersion{}, err
	}
	var pkg struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ApiVersion{}, fmt.Errorf("tsversion: parsing %s: %w", pkgPath, err)
	}
	if pkg.Version == "" {
		return ApiVersion{}, fmt.Errorf("tsversion: %s has no version field", pkgPath)
	}
	return Parse(pkg.Version)
}

func (r *Resolver) watch(dir string) {
	if r.watcher != nil {
		r.watcher.Close()
		r.watcher = nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		r.log.WithError(err).Warn("tsversion: could not start filesystem watcher")
		return
	}
	if err := w.Add(dir); err != nil {
		r.log.WithError(err).WithField("dir", dir).Warn("tsversion: could not watch directory")
		w.Close()
		return
	}
	r.watcher = w
	go func() {
		for {
			select {
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				select {
				case r.changes <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.log.WithError(err).Debug("tsversion: watcher error")
			}
		}
	}()
}

// Close stops the filesystem watcher, if any.
func (r *Resolver) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}
