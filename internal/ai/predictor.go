// Package ai holds the optional inference overlay of spec.md §4.5/§9: a
// swappable Predictor interface with a no-op default, so a model-backed
// implementation can be wired in later without touching the Signal Engine.
package ai

import "signalengine/internal/model"

// AlwaysAbstain is the default Predictor: it never confirms a signal. With
// ai_enabled=false the Signal Engine never consults it at all; if enabled
// without a real model behind it, every signal is filtered, which is the
// safe failure mode for an overlay that is supposed to be optional.
type AlwaysAbstain struct{}

// Predict always returns zero confidence, grounded on
// original_source/app/ai/inference.py's predict() contract (probability_long,
// probability_short, confidence), promoted to an interface per spec.md §9's
// design note.
func (AlwaysAbstain) Predict(model.Features) model.AIResult {
	return model.AIResult{}
}

var _ model.Predictor = AlwaysAbstain{}
