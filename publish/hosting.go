package publish

// HostingOutcome records what is known about GitHub Pages after a publish. The
// Pages URL is returned for every outcome, only HostingEnabled confirms it serves.
type HostingOutcome string

// HostingEnabled indicates GitHub confirmed Pages is enabled for the branch
const HostingEnabled HostingOutcome = "enabled"

// HostingUnconfirmed indicates enabling Pages was attempted but GitHub did not
// confirm it
const HostingUnconfirmed HostingOutcome = "unconfirmed"

// HostingNotAttempted indicates enabling Pages was skipped
const HostingNotAttempted HostingOutcome = "not_attempted"

// Confirmed indicates the outcome guarantees Pages is enabled
func (o HostingOutcome) Confirmed() bool {
	return o == HostingEnabled
}
