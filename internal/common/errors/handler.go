// internal/common/errors/handler.go
package errors

// Disposition is what the bus layer should do with a message whose handlers failed.
type Disposition int

const (
	// Redeliver leaves the message pending so it is delivered again.
	Redeliver Disposition = iota
	// Drop acknowledges the message without further processing.
	Drop
	// DeadLetter copies the message to the dead-letter stream, then acknowledges it.
	DeadLetter
)

func (d Disposition) String() string {
	switch d {
	case Redeliver:
		return "redeliver"
	case Drop:
		return "drop"
	case DeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// ErrorHandler decides and logs the disposition of failed messages.
type ErrorHandler struct {
	logger        Logger
	maxDeliveries int64
}

func NewErrorHandler(logger Logger, maxDeliveries int64) *ErrorHandler {
	return &ErrorHandler{logger: logger, maxDeliveries: maxDeliveries}
}

// HandleMessageError classifies err for a message that has been delivered
// `deliveries` times (1 on first delivery).
func (h *ErrorHandler) HandleMessageError(messageID string, deliveries int64, err error) Disposition {
	stdErr := AsStandard(err)

	disposition := Redeliver
	switch {
	case !IsRetryable(err):
		disposition = Drop
	case h.maxDeliveries > 0 && deliveries >= h.maxDeliveries:
		disposition = DeadLetter
	}

	h.logger.Error("message processing failed", map[string]interface{}{
		"messageId":     messageID,
		"deliveries":    deliveries,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     disposition != Drop,
		"errorCategory": GetErrorCategory(stdErr.Code),
		"disposition":   disposition.String(),
	})

	return disposition
}
