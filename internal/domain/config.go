package domain

// VectorConfig holds the encoder settings the rest of the system relies on.
type VectorConfig struct {
	Model         string
	ModelVersion  string
	Dimensions    int
	MaxInputChars int
}

// DefaultVectorConfig returns defaults for all-MiniLM-L6-v2, the model the
// corpus was originally embedded with.
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{
		Model:         "sentence-transformers/all-MiniLM-L6-v2",
		ModelVersion:  "sentence-transformers/all-MiniLM-L6-v2",
		Dimensions:    384,
		MaxInputChars: 2048,
	}
}
