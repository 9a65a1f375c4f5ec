// Package atomicwrite escribe archivos de forma atómica: temporal en el mismo
// directorio, fsync y rename. Un lector nunca ve un archivo a medio escribir.
package atomicwrite

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteFile escribe data en path de forma atómica.
func WriteFile(path string, data []byte, perm fs.FileMode) error {
	return WriteFunc(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteFunc es WriteFile con el contenido producido por fill. Si fill falla
// el destino queda intacto.
func WriteFunc(path string, perm fs.FileMode, fill func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := fill(tmp); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}

	// en Windows rename falla si el destino está abierto: remove + rename
	if rerr := os.Rename(tmpPath, path); rerr != nil {
		_ = os.Remove(path)
		if err := os.Rename(tmpPath, path); err != nil {
			return fmt.Errorf("rename: %v (after remove: %w)", rerr, err)
		}
	}
	return nil
}
