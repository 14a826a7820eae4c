package messaging

// Subjects follow {product}.{resource}.{event}.
const (
	SubjectPredictionsSucceeded = "bloomwatch.predictions.succeeded"
	SubjectPredictionsFailed    = "bloomwatch.predictions.failed"

	// SubjectPredictionsAll matches every prediction event.
	SubjectPredictionsAll = "bloomwatch.predictions.>"
)

// HeaderRequestID carries the HTTP request ID on published events.
const HeaderRequestID = "Request-Id"

// PredictionSubject picks the subject for an outcome.
func PredictionSubject(succeeded bool) string {
	if succeeded {
		return SubjectPredictionsSucceeded
	}
	return SubjectPredictionsFailed
}
