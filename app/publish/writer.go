package publish

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Artifact is one output file with its full content.
type Artifact struct {
	Path string
	Data []byte
}

// ArtifactWriter replaces a group of artifacts as a unit: every file is staged
// next to its destination first, then all are renamed. If any rename fails the
// already replaced files get their previous content back.
type ArtifactWriter struct {
	rename func(oldpath, newpath string) error
}

func NewArtifactWriter() *ArtifactWriter {
	return &ArtifactWriter{rename: os.Rename}
}

type staged struct {
	artifact Artifact
	tmpPath  string
	prior    []byte
	existed  bool
}

func (w *ArtifactWriter) WriteAll(artifacts []Artifact) error {
	var pending []staged
	cleanup := func() {
		for _, s := range pending {
			os.Remove(s.tmpPath)
		}
	}

	for _, a := range artifacts {
		s, err := stage(a)
		if err != nil {
			cleanup()
			return err
		}
		pending = append(pending, s)
	}

	for i, s := range pending {
		if err := w.rename(s.tmpPath, s.artifact.Path); err != nil {
			cleanup()
			restore(pending[:i])
			return fmt.Errorf("failed to replace %s: %w", s.artifact.Path, err)
		}
	}

	return nil
}

func stage(a Artifact) (staged, error) {
	s := staged{artifact: a}

	dir := filepath.Dir(a.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return s, fmt.Errorf("failed to create output directory: %w", err)
	}

	prior, err := os.ReadFile(a.Path)
	switch {
	case err == nil:
		s.prior = prior
		s.existed = true
	case !errors.Is(err, fs.ErrNotExist):
		return s, fmt.Errorf("failed to read existing %s: %w", a.Path, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(a.Path)+".*.tmp")
	if err != nil {
		return s, fmt.Errorf("failed to create temp file: %w", err)
	}
	s.tmpPath = tmp.Name()

	if _, err := tmp.Write(a.Data); err != nil {
		tmp.Close()
		os.Remove(s.tmpPath)
		return s, fmt.Errorf("failed to write %s: %w", a.Path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(s.tmpPath)
		return s, fmt.Errorf("failed to close %s: %w", a.Path, err)
	}
	if err := os.Chmod(s.tmpPath, 0644); err != nil {
		os.Remove(s.tmpPath)
		return s, fmt.Errorf("failed to set permissions on %s: %w", a.Path, err)
	}

	return s, nil
}

func restore(replaced []staged) {
	for _, s := range replaced {
		var err error
		if s.existed {
			err = os.WriteFile(s.artifact.Path, s.prior, 0644)
		} else {
			err = os.Remove(s.artifact.Path)
		}
		if err != nil {
			slog.Error("Failed to restore artifact", "path", s.artifact.Path, "error", err)
		}
	}
}
