package core

import "context"

// Broker counters. Operation counters and durations are named
// consent.<operation>.total and consent.<operation>.duration_ms.
const (
	MetricAuthorizationStarted  = "consent.authorization.started"
	MetricAuthorizationRejected = "consent.authorization.rejected"
	MetricAuthorizationEnded    = "consent.authorization.ended"
)

// Outcomes tagged on MetricAuthorizationEnded.
const (
	OutcomeGranted          = "granted"
	OutcomeDenied           = "denied"
	OutcomeWrongRequestCode = "wrong_request_code"
	OutcomeAppUnavailable   = "app_unavailable"
	OutcomeResolved         = "resolved"
	OutcomeCancelled        = "cancelled"
	OutcomeTimedOut         = "timed_out"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func operationCounterName(operation string) string {
	return "consent." + operation + ".total"
}

func operationDurationName(operation string) string {
	return "consent." + operation + ".duration_ms"
}

func authorizationStartedTags(state AuthorizationState, resolver Resolver) map[string]string {
	tags := map[string]string{"state": state.String()}
	if resolver != nil {
		tags["resolver"] = string(resolver.Kind())
	}
	return tags
}

func authorizationEndedTags(from AuthorizationState, outcome string) map[string]string {
	return map[string]string{"from": from.String(), "outcome": outcome}
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
