// Package templates loads code template files from a directory into the
// task store and keeps them current while the server runs. Each file
// becomes one template named after its filename stem, so reloading an
// edited file overwrites the stored row rather than adding a new one.
package templates

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"forgehq/loom/pkg/store"
)

// Store is the subset of the task store the loader writes to.
type Store interface {
	SaveTemplate(ctx context.Context, tpl *store.Template) error
}

// extensionLanguages maps template file extensions to the language recorded
// on the stored template. Files with other extensions are ignored.
var extensionLanguages = map[string]store.Language{
	".ts":   store.LanguageTypeScript,
	".tsx":  store.LanguageTypeScript,
	".js":   store.LanguageJavaScript,
	".jsx":  store.LanguageJavaScript,
	".py":   store.LanguagePython,
	".java": store.LanguageJava,
	".cs":   store.LanguageCSharp,
	".go":   store.LanguageGo,
	".rb":   store.LanguageRuby,
	".php":  store.LanguagePHP,
}

// Loader reads template files from a directory and upserts them into the
// store.
type Loader struct {
	store  Store
	dir    string
	logger *slog.Logger
}

// NewLoader creates a loader for the given directory.
func NewLoader(st Store, dir string) *Loader {
	return &Loader{
		store:  st,
		dir:    dir,
		logger: slog.Default().With("component", "templates"),
	}
}

// Dir returns the directory the loader reads from.
func (l *Loader) Dir() string {
	return l.dir
}

// Load upserts every recognized template file in the directory into the
// store and returns the number written. Subdirectories, hidden files,
// empty files and files with unrecognized extensions are skipped. A file
// that cannot be read is skipped with a warning; a store failure aborts
// the load.
func (l *Loader) Load(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read templates directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		lang, ok := extensionLanguages[strings.ToLower(filepath.Ext(name))]
		if !ok {
			l.logger.DebugContext(ctx, "skipping unrecognized template file", "file", name)
			continue
		}

		content, err := os.ReadFile(filepath.Join(l.dir, name))
		if err != nil {
			// The file may have been removed between listing and reading.
			l.logger.WarnContext(ctx, "failed to read template file", "file", name, "error", err)
			continue
		}
		if len(content) == 0 {
			l.logger.WarnContext(ctx, "skipping empty template file", "file", name)
			continue
		}

		stem := strings.TrimSuffix(name, filepath.Ext(name))
		tpl := &store.Template{
			Name:     stem,
			Language: lang,
			Content:  string(content),
		}
		if err := l.store.SaveTemplate(ctx, tpl); err != nil {
			return loaded, fmt.Errorf("failed to save template %s: %w", stem, err)
		}
		loaded++
	}

	l.logger.InfoContext(ctx, "templates loaded", "dir", l.dir, "count", loaded)
	return loaded, nil
}
