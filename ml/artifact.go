package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FormatVersion is bumped whenever the artifact layout changes.
const FormatVersion = 1

// Default artifact file names inside the artifact directory.
const (
	DefaultModelFile    = "loan_model.json"
	DefaultEncodersFile = "label_encoders.json"
)

// ArtifactMeta describes how a model artifact was produced.
type ArtifactMeta struct {
	ModelType    string         `json:"model_type"`
	Version      string         `json:"version,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Dataset      string         `json:"dataset,omitempty"`
	FeatureNames []string       `json:"feature_names,omitempty"`
	Target       string         `json:"target,omitempty"`
	ClassLabels  []string       `json:"class_labels,omitempty"`
	Metrics      *Metrics       `json:"metrics,omitempty"`
	Params       map[string]any `json:"params,omitempty"`
}

type modelEnvelope struct {
	FormatVersion int             `json:"format_version"`
	Meta          ArtifactMeta    `json:"meta"`
	Model         json.RawMessage `json:"model"`
}

type encodersEnvelope struct {
	FormatVersion int        `json:"format_version"`
	Version       string     `json:"version,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	Encoders      EncoderSet `json:"encoders"`
}

// SaveModel writes model and its metadata to path.
func SaveModel(path string, model MLModel, meta ArtifactMeta) error {
	payload, err := json.Marshal(model)
	if err != nil {
		return err
	}
	meta.ModelType = model.Type()
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(modelEnvelope{
		FormatVersion: FormatVersion,
		Meta:          meta,
		Model:         payload,
	})
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// SaveEncoders writes the encoder set to path.
func SaveEncoders(path string, encoders EncoderSet, version string) error {
	if len(encoders) == 0 {
		return errors.New("encoder set is empty")
	}
	data, err := json.MarshalIndent(encodersEnvelope{
		FormatVersion: FormatVersion,
		Version:       version,
		CreatedAt:     time.Now().UTC(),
		Encoders:      encoders,
	}, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// LoadEncoders reads an encoder set written by SaveEncoders.
func LoadEncoders(path string) (EncoderSet, string, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	var envelope encodersEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", path, err)
	}
	if envelope.FormatVersion != FormatVersion {
		return nil, "", fmt.Errorf("%s: unsupported format version %d", path, envelope.FormatVersion)
	}
	if len(envelope.Encoders) == 0 {
		return nil, "", fmt.Errorf("%s: no encoders", path)
	}
	for column, enc := range envelope.Encoders {
		if enc == nil {
			return nil, "", fmt.Errorf("%s: encoder %s is null", path, column)
		}
		if enc.column == "" {
			enc.column = column
		}
		if enc.column != column {
			return nil, "", fmt.Errorf("%s: encoder keyed %s is fitted for %s", path, column, enc.column)
		}
	}
	return envelope.Encoders, envelope.Version, nil
}

// writeFileAtomic writes through a temp file in the same directory so readers
// never observe a partial artifact.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
