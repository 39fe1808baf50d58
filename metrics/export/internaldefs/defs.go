package internaldefs

import (
	"strconv"

	"github.com/connectit/authcore"
)

const namespace = "authcore"

// CounterDef names one exported counter.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var counterHelp = map[authcore.MetricID]string{
	authcore.MetricLoginSuccess:       "Successful logins.",
	authcore.MetricLoginFailure:       "Failed login attempts.",
	authcore.MetricLoginLocked:        "Login attempts rejected by lockout.",
	authcore.MetricLoginRateLimited:   "Login attempts rejected by the per-IP budget.",
	authcore.MetricCaptchaRequired:    "Logins that required a CAPTCHA.",
	authcore.MetricCaptchaFailure:     "Failed CAPTCHA verifications.",
	authcore.MetricSessionIssued:      "Issued sessions.",
	authcore.MetricSessionRefreshed:   "Refreshed sessions.",
	authcore.MetricSessionSuperseded:  "Requests carrying a superseded session.",
	authcore.MetricSessionExpired:     "Requests carrying an expired session.",
	authcore.MetricSessionInvalid:     "Requests carrying an invalid session.",
	authcore.MetricLogout:             "Logouts.",
	authcore.MetricCsrfIssued:         "Issued CSRF pairs.",
	authcore.MetricCsrfRejected:       "Rejected CSRF checks.",
	authcore.MetricTOTPRequired:       "Logins that required a two-factor code.",
	authcore.MetricTOTPSuccess:        "Accepted two-factor codes.",
	authcore.MetricTOTPFailure:        "Rejected two-factor codes.",
	authcore.MetricTOTPEnrolled:       "Two-factor enrollments.",
	authcore.MetricPasswordChanged:    "Password changes.",
	authcore.MetricPasswordUpgraded:   "Password hashes re-encoded after login.",
	authcore.MetricAccountRegistered:  "Registered accounts.",
	authcore.MetricDocumentStored:     "Stored encrypted documents.",
	authcore.MetricDecryptFailure:     "Failed decryptions.",
	authcore.MetricBackendUnavailable: "Operations denied because a backend was unreachable.",
}

// CounterDefs lists every counter in MetricID order.
var CounterDefs = buildCounterDefs()

func buildCounterDefs() []CounterDef {
	defs := make([]CounterDef, 0, len(counterHelp))
	for _, id := range authcore.MetricIDs() {
		help, ok := counterHelp[id]
		if !ok {
			continue
		}
		defs = append(defs, CounterDef{ID: id, Name: namespace + "_" + id.String() + "_total", Help: help})
	}
	return defs
}

var HistogramDefs = []HistogramDef{
	{
		ID:   authcore.MetricValidateLatency,
		Name: namespace + "_" + authcore.MetricValidateLatency.String() + "_seconds",
		Help: "Session validation latency.",
	},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = namespace + "_audit_dropped_total"

// BucketCount includes the unbounded last bucket.
const BucketCount = len(authcore.HistogramBounds) + 1

// UpperBoundsSeconds converts the millisecond bounds of the core histogram.
func UpperBoundsSeconds() []float64 {
	out := make([]float64, len(authcore.HistogramBounds))
	for i, ms := range authcore.HistogramBounds {
		out[i] = ms / 1000
	}
	return out
}

// BucketLabels are the "le" values of each bucket in Prometheus notation,
// e.g. "0.005" for 5ms and "+Inf" for the last bucket.
func BucketLabels() []string {
	out := make([]string, 0, BucketCount)
	for _, b := range UpperBoundsSeconds() {
		out = append(out, strconv.FormatFloat(b, 'f', -1, 64))
	}
	return append(out, "+Inf")
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
