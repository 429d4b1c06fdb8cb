package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var errInvalidID = errors.New("invalid record id")

// jsonDir stores one JSON document per record in a directory.
type jsonDir[T any] struct {
	dir string
}

func newJSONDir[T any](root, name string) jsonDir[T] {
	return jsonDir[T]{dir: filepath.Join(root, name)}
}

func (d jsonDir[T]) path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: %q", errInvalidID, id)
	}

	return filepath.Join(d.dir, id+".json"), nil
}

// get returns fs.ErrNotExist when the record does not exist.
func (d jsonDir[T]) get(id string) (*T, error) {
	filePath, err := d.path(id)
	if err != nil {
		return nil, fs.ErrNotExist
	}

	body, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var record T

	err = json.Unmarshal(body, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", filePath, err)
	}

	return &record, nil
}

func (d jsonDir[T]) all() ([]*T, error) {
	files, err := fs.Glob(os.DirFS(d.dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", d.dir, err)
	}

	records := make([]*T, 0, len(files))

	for _, name := range files {
		record, err := d.get(strings.TrimSuffix(name, ".json"))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

func (d jsonDir[T]) put(id string, record *T) error {
	filePath, err := d.path(id)
	if err != nil {
		return err
	}

	err = os.MkdirAll(d.dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", d.dir, err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	return writeFile(d.dir, filePath, data)
}

// raw returns the stored document, or nil when the record does not exist.
func (d jsonDir[T]) raw(id string) ([]byte, error) {
	filePath, err := d.path(id)
	if err != nil {
		return nil, nil
	}

	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	return data, err
}

// restore puts back a document captured by raw. A nil document removes the record.
func (d jsonDir[T]) restore(id string, data []byte) error {
	if data == nil {
		_, err := d.remove(id)

		return err
	}

	filePath, err := d.path(id)
	if err != nil {
		return err
	}

	return writeFile(d.dir, filePath, data)
}

// writeFile replaces filePath through a temporary file in dir so readers never
// see a partial document.
func writeFile(dir, filePath string, data []byte) error {
	tmp, err := os.CreateTemp(dir, filepath.Base(filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Chmod(0600)
	}

	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}

	if err == nil {
		err = os.Rename(tmpName, filePath)
	}

	if err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write %s: %w", filePath, err)
	}

	return nil
}

// remove reports whether a record was deleted.
func (d jsonDir[T]) remove(id string) (bool, error) {
	filePath, err := d.path(id)
	if err != nil {
		return false, nil
	}

	err = os.Remove(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", id, err)
	}

	return true, nil
}
