package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileName returns the manifest file name expected inside dir.
func FileName(dir string) string {
	return filepath.Base(dir) + ".json"
}

// Load walks root in lexical order and decodes every manifest it finds. A
// directory holds a manifest when it contains a regular file named after the
// directory itself, e.g. plugins/Foo/Foo.json. Other directories are skipped.
func Load(root string) (Manifests, error) {
	ret := make(Manifests, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		fn := filepath.Join(path, FileName(path))
		info, err := os.Stat(fn)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		m, err := ReadFile(fn)
		if err != nil {
			return err
		}
		ret = append(ret, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// ReadFile decodes a single manifest. Numbers are kept as json.Number so they
// are written back exactly as they were read.
func ReadFile(fn string) (Manifest, error) {
	data, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", fn, err)
	}
	if m == nil {
		return nil, fmt.Errorf("failed to parse manifest %s: not a JSON object", fn)
	}
	return m, nil
}
