// Package artifact stores the outputs of the orchestration in a folder.
//
// Every artifact is a file named after the artifact and the kind of its
// content: <name>.bin for a bytecode, <name>.yaml for structured metadata and
// <name>.txt for a short text record such as an identifier.
package artifact

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// DefaultDir is the default folder of the artifacts.
const DefaultDir = "artifacts"

// ErrMissing is returned when an artifact does not exist.
var ErrMissing = xerrors.New("artifact is missing")

// Kind is the kind of content of an artifact.
type Kind string

const (
	// KindBytecode is the kind of a compiled program.
	KindBytecode Kind = "bin"

	// KindMeta is the kind of structured metadata.
	KindMeta Kind = "yaml"

	// KindRecord is the kind of a text record.
	KindRecord Kind = "txt"
)

// Store is a folder of artifacts.
type Store struct {
	dir string

	readFileFn  func(path string) ([]byte, error)
	writeFileFn func(path string, data []byte, perm os.FileMode) error
}

// NewStore returns a store of the artifacts in the folder. The folder is
// created on the first write.
func NewStore(dir string) *Store {
	return &Store{
		dir:         dir,
		readFileFn:  os.ReadFile,
		writeFileFn: os.WriteFile,
	}
}

// Dir returns the folder of the store.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the path of the artifact.
func (s *Store) Path(name string, kind Kind) string {
	return filepath.Join(s.dir, name+"."+string(kind))
}

// WriteBytecode stores the bytecode of a program.
func (s *Store) WriteBytecode(name string, bytecode []byte) error {
	return s.write(name, KindBytecode, bytecode)
}

// ReadBytecode returns the bytecode of a program.
func (s *Store) ReadBytecode(name string) ([]byte, error) {
	return s.read(name, KindBytecode)
}

// WriteMeta stores the metadata encoded in YAML.
func (s *Store) WriteMeta(name string, meta interface{}) error {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return xerrors.Errorf("failed to encode '%s': %v", name, err)
	}

	return s.write(name, KindMeta, data)
}

// ReadMeta populates the metadata from the YAML artifact.
func (s *Store) ReadMeta(name string, meta interface{}) error {
	data, err := s.read(name, KindMeta)
	if err != nil {
		return err
	}

	err = yaml.UnmarshalStrict(data, meta)
	if err != nil {
		return xerrors.Errorf("failed to decode '%s': %v", name, err)
	}

	return nil
}

// WriteRecord stores a text record.
func (s *Store) WriteRecord(name, text string) error {
	return s.write(name, KindRecord, []byte(text+"\n"))
}

// ReadRecord returns a text record without the surrounding spaces.
func (s *Store) ReadRecord(name string) (string, error) {
	data, err := s.read(name, KindRecord)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(data)), nil
}

// Remove deletes the artifact. It does nothing if it does not exist.
func (s *Store) Remove(name string, kind Kind) error {
	err := os.Remove(s.Path(name, kind))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return xerrors.Errorf("failed to remove '%s': %v", name, err)
	}

	return nil
}

func (s *Store) read(name string, kind Kind) ([]byte, error) {
	path := s.Path(name, kind)

	data, err := s.readFileFn(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, xerrors.Errorf("%s: %w", path, ErrMissing)
	}

	if err != nil {
		return nil, xerrors.Errorf("while reading %s: %v", path, err)
	}

	return data, nil
}

func (s *Store) write(name string, kind Kind, data []byte) error {
	err := os.MkdirAll(s.dir, 0700)
	if err != nil {
		return xerrors.Errorf("couldn't make folder: %v", err)
	}

	path := s.Path(name, kind)

	err = s.writeFileFn(path, data, 0600)
	if err != nil {
		return xerrors.Errorf("while writing %s: %v", path, err)
	}

	return nil
}
