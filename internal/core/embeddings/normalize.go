package embeddings

// normalizeDimension pads or truncates a vector to the target length. Zero
// padding does not change the angle between vectors, so cosine similarity
// over padded vectors stays correct; truncation only happens when a provider
// ignores the requested output dimension.
func normalizeDimension(vec []float32, target int) []float32 {
	if len(vec) == target {
		return vec
	}

	if len(vec) > target {
		return vec[:target]
	}

	padded := make([]float32, target)
	copy(padded, vec)

	return padded
}
