package config

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/marmos91/sbrokerd/internal/logger"
)

// ServiceFile is the parsed [LOCAL]/[GLOBAL]/[FORWARD] configuration
// file: which interfaces are local-only, which are global, and which
// a tree-mode broker forwards upstream.
type ServiceFile struct {
	Local      map[string]struct{}
	Global     map[string]struct{}
	Forward    map[string]struct{}
	ForwardAll bool
}

// LoadServiceFile parses path. A missing file is not an error — it
// yields an empty ServiceFile, matching the original's "nothing
// configured" fallback when the default location doesn't exist.
func LoadServiceFile(path string) (*ServiceFile, error) {
	sf := &ServiceFile{
		Local:   map[string]struct{}{},
		Global:  map[string]struct{}{},
		Forward: map[string]struct{}{},
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sf, nil
		}
		return nil, err
	}
	defer f.Close()

	const (
		sectionIgnore = iota
		sectionLocal
		sectionGlobal
		sectionForward
	)
	section := sectionIgnore

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if line[0] == '[' {
			section = sectionIgnore
			if end := strings.IndexByte(line, ']'); end > 0 {
				switch line[1:end] {
				case "LOCAL":
					section = sectionLocal
				case "GLOBAL":
					section = sectionGlobal
				case "FORWARD":
					section = sectionForward
				}
			}
			continue
		}

		switch section {
		case sectionLocal:
			sf.Local[line] = struct{}{}
		case sectionGlobal:
			sf.Global[line] = struct{}{}
		case sectionForward:
			if line == "*" {
				sf.ForwardAll = true
			} else {
				sf.Forward[line] = struct{}{}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return sf, nil
}

// IsLocal reports whether name is a local-only service. A non-empty
// [GLOBAL] section takes precedence over [LOCAL]: when present, every
// name absent from it counts as local.
func (sf *ServiceFile) IsLocal(name string) bool {
	if len(sf.Global) > 0 {
		_, global := sf.Global[name]
		return !global
	}
	_, local := sf.Local[name]
	return local
}

// Watch reloads path whenever it changes on disk and invokes onReload
// with the freshly parsed ServiceFile. It blocks until ctx is
// cancelled.
func Watch(ctx context.Context, path string, onReload func(*ServiceFile)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	want := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != want {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			sf, err := LoadServiceFile(path)
			if err != nil {
				logger.Error("config reload failed", "path", path, "error", err)
				continue
			}
			logger.Info("config file reloaded", "path", path)
			onReload(sf)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher error", "error", err)
		}
	}
}
