package push

import "net/http"

// classifyStatus maps a push service HTTP status to an outcome kind.
//
// 404 and 410 both mean the subscription no longer exists; push services are
// inconsistent about which they return, so both are treated as stale. 429 and
// 5xx are transient and grouped as throttled so callers can back off the
// account rather than the device.
func classifyStatus(status int) OutcomeKind {
	switch {
	case status >= 200 && status < 300:
		return OutcomeDelivered
	case status == http.StatusNotFound, status == http.StatusGone:
		return OutcomeStaleEndpoint
	case status == http.StatusRequestEntityTooLarge:
		return OutcomePayloadTooLarge
	case status == http.StatusTooManyRequests, status >= 500:
		return OutcomeThrottled
	default:
		return OutcomeTransportError
	}
}
