// Package artifact stores a fitted pipeline on disk and moves it to and from
// a remote model repository.
package artifact

import (
	"encoding"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// DefaultName is the file name of the serialized pipeline, locally and remotely.
const DefaultName = "decision_tree_pipeline.joblib"

const (
	formatMagic   = "insurance-model/decision-tree-pipeline"
	formatVersion = 1
)

var (
	// ErrArtifactNotFound is returned by Load when the file does not exist.
	ErrArtifactNotFound = errors.New("artifact: file not found")
	// ErrBadFormat is returned by Load for files not written by Save.
	ErrBadFormat = errors.New("artifact: unrecognized format")
)

// Metadata describes how an artifact was produced.
type Metadata struct {
	RunID        string
	CreatedAt    time.Time
	FeatureNames []string
	TrainRows    int
	TestRows     int
	TestR2       float64
}

// NewMetadata returns metadata stamped with a fresh run ID and the current time.
func NewMetadata() Metadata {
	return Metadata{RunID: uuid.NewString(), CreatedAt: time.Now().UTC()}
}

type envelope struct {
	Magic   string
	Version int
	Meta    Metadata
	Payload []byte
}

// Save writes m and meta to path as a zstd-compressed gob envelope. The file
// is written next to path and renamed into place.
func Save(path string, m encoding.BinaryMarshaler, meta Metadata) error {
	payload, err := m.MarshalBinary()
	if err != nil {
		return fmt.Errorf("artifact: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("artifact: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeEnvelope(tmp, envelope{Magic: formatMagic, Version: formatVersion, Meta: meta, Payload: payload}); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("artifact: %w", err)
	}
	return nil
}

// writeEnvelope writes env compressed to w.
func writeEnvelope(w io.Writer, env envelope) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("artifact: zstd: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(env); err != nil {
		zw.Close()
		return fmt.Errorf("artifact: encode: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("artifact: zstd: %w", err)
	}
	return nil
}

// Load reads the artifact at path into m and returns its metadata.
func Load(path string, m encoding.BinaryUnmarshaler) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Metadata{}, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
		}
		return Metadata{}, fmt.Errorf("artifact: %w", err)
	}
	defer f.Close()
	return Read(f, m)
}

// Read decodes an artifact stream into m.
func Read(r io.Reader, m encoding.BinaryUnmarshaler) (Metadata, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return Metadata{}, fmt.Errorf("artifact: zstd: %w", err)
	}
	defer zr.Close()

	var env envelope
	if err := gob.NewDecoder(zr).Decode(&env); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	if env.Magic != formatMagic {
		return Metadata{}, fmt.Errorf("%w: magic %q", ErrBadFormat, env.Magic)
	}
	if env.Version != formatVersion {
		return Metadata{}, fmt.Errorf("%w: version %d", ErrBadFormat, env.Version)
	}
	if err := m.UnmarshalBinary(env.Payload); err != nil {
		return Metadata{}, fmt.Errorf("artifact: unmarshal: %w", err)
	}
	return env.Meta, nil
}
