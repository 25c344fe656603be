package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// LoadModel reads a model artifact and returns the classifier it holds,
// dispatching on the envelope type.
func LoadModel(path string) (MLModel, *ArtifactMeta, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var envelope modelEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if envelope.FormatVersion != FormatVersion {
		return nil, nil, fmt.Errorf("%s: unsupported format version %d", path, envelope.FormatVersion)
	}
	if len(envelope.Model) == 0 {
		return nil, nil, fmt.Errorf("%s: no model payload", path)
	}

	model, ok := NewModel(envelope.Meta.ModelType)
	if !ok || envelope.Meta.ModelType == "" {
		return nil, nil, fmt.Errorf("%s: unsupported model type %q", path, envelope.Meta.ModelType)
	}
	if err := json.Unmarshal(envelope.Model, model); err != nil {
		return nil, nil, fmt.Errorf("decode %s model: %w", envelope.Meta.ModelType, err)
	}
	if n := len(envelope.Meta.FeatureNames); n > 0 && n != model.NumFeatures() {
		return nil, nil, fmt.Errorf("%s: %d feature names for a %d-feature model", path, n, model.NumFeatures())
	}
	meta := envelope.Meta
	return model, &meta, nil
}

// CheckSchema verifies that a model was trained on the current feature schema.
func CheckSchema(meta *ArtifactMeta, model Classifier) error {
	names := FeatureNames()
	if model.NumFeatures() != len(names) {
		return fmt.Errorf("model expects %d features, schema has %d", model.NumFeatures(), len(names))
	}
	if meta == nil || len(meta.FeatureNames) == 0 {
		return errors.New("model artifact does not record its feature names")
	}
	for i, name := range names {
		if meta.FeatureNames[i] != name {
			return fmt.Errorf("feature %d is %q in the model, %q in the schema", i, meta.FeatureNames[i], name)
		}
	}
	return nil
}
