package pipeline

import "fmt"

// Disposition is the terminal classification of one message.
type Disposition int

const (
	// Accepted: delivered downstream, acknowledge the message.
	Accepted Disposition = iota
	// Quarantined: will never succeed, move the message aside.
	Quarantined
	// Retryable: a dependency failed, redeliver later.
	Retryable
)

func (d Disposition) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case Quarantined:
		return "quarantined"
	case Retryable:
		return "retryable"
	}
	return fmt.Sprintf("Disposition(%d)", int(d))
}

// Reasons attached to non-accepted outcomes.
const (
	ReasonBadDecrypt       = "bad decrypt"
	ReasonUnexpectedUnseal = "unexpected unseal failure"
	ReasonMissingField     = "missing/empty required field"
	ReasonReceiptService   = "receipt service error"
	ReasonUnsafeFile       = "unsafe file"
	ReasonScanTimeout      = "scan timeout"
	ReasonScanService      = "scan service error"
	ReasonDeliveryFailed   = "delivery failed"
)

// Outcome is the result of processing one message. Reason is empty for
// Accepted.
type Outcome struct {
	Disposition Disposition
	Reason      string
}

func Accept() Outcome { return Outcome{Disposition: Accepted} }

func Quarantine(reason string) Outcome {
	return Outcome{Disposition: Quarantined, Reason: reason}
}

func Retry(reason string) Outcome {
	return Outcome{Disposition: Retryable, Reason: reason}
}

func (o Outcome) String() string {
	if o.Reason == "" {
		return o.Disposition.String()
	}
	return o.Disposition.String() + ": " + o.Reason
}
