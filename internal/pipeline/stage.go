package pipeline

import (
	"fmt"
)

// Stage names one step of a run. The string values appear in errors,
// metrics labels and HTTP error bodies.
type Stage string

const (
	// StageDescribe is the vision call on the uploaded image.
	StageDescribe Stage = "describe"
	// StageKeywords distills the description into keywords.
	StageKeywords Stage = "keywords"
	// StageFeatures maps keywords to acoustic feature text.
	StageFeatures Stage = "features"
	// StageVectorQuery encodes the feature text and queries the index.
	StageVectorQuery Stage = "vector_query"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageDescribe, StageKeywords, StageFeatures, StageVectorQuery}

// StageError tags a failure with the stage that produced it.
type StageError struct {
	// Stage is the step that failed.
	Stage Stage
	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: stage %s: %v", e.Stage, e.Err)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *StageError) Unwrap() error { return e.Err }
