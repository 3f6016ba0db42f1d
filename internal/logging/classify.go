package logging

// #region classify
// Classify infers an error type from the record's fields. Checks run in a
// fixed order and the first match wins.
func Classify(rec ErrorRecord) ErrorType {
	if rec.OriginalLabel != nil && rec.PredictedLabel != nil &&
		*rec.OriginalLabel != "" && *rec.PredictedLabel != "" &&
		*rec.OriginalLabel != *rec.PredictedLabel {
		return ClassificationError
	}
	if rec.Confidence != nil && rec.ConfidenceThreshold != nil && *rec.Confidence < *rec.ConfidenceThreshold {
		return LowConfidence
	}
	if truthy(rec.Meta[FlagInconsistent]) {
		return InconsistentOutput
	}
	if truthy(rec.Meta[FlagRefinementFailed]) {
		return RefinementFailed
	}
	if truthy(rec.Meta[FlagDecoderError]) {
		return OutputDecoderError
	}
	return Other
}

// truthy treats nil, false, zero numbers and empty strings as unset.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case int:
		return x != 0
	}
	return true
}

// #endregion classify
