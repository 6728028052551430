package engine

// Result is the uniform response envelope returned by every public workflow
// operation. Failures carry the same shape as successes so transport-layer
// callers never need to distinguish business rejections from errors.
type Result struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Message string         `json:"message"`
}

// OK builds a success envelope
func OK(message string, data map[string]any) *Result {
	return &Result{Success: true, Data: data, Message: message}
}

// Fail builds a failure envelope
func Fail(message string) *Result {
	return &Result{Success: false, Message: message}
}

// Merge returns a new map holding every key of base overlaid with every key
// of extra. Neither input is mutated; base keys are never dropped.
func Merge(base, extra map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
