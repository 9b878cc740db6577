package negotiate

import (
	"log/slog"
	"time"
)

// Security event types
const (
	EventAuthentication = "authentication"
)

// Security event subtypes
const (
	SubtypeAuthAttempt   = "attempt"
	SubtypeAuthChallenge = "challenge"
	SubtypeAuthSuccess   = "success"
	SubtypeAuthFailure   = "failure"
	SubtypeAuthDenied    = "denied"
)

// Security event severities
const (
	SeverityInfo    = "INFO"
	SeverityWarning = "WARNING"
	SeverityError   = "ERROR"
)

// SecurityEvent is a structured audit record following NIST SP 800-92.
type SecurityEvent struct {
	Timestamp string `json:"timestamp"`  // ISO 8601 UTC
	EventType string `json:"event_type"` // authentication
	Subtype   string `json:"subtype"`    // attempt, success, failure, denied
	Severity  string `json:"severity"`   // INFO, WARNING, ERROR

	User          string `json:"user,omitempty"`
	Source        string `json:"source"`         // client address
	Target        string `json:"target"`         // request path
	CorrelationID string `json:"correlation_id"` // handshake-scoped UUID

	Action  string         `json:"action"`
	Outcome string         `json:"outcome"`
	Details map[string]any `json:"details,omitempty"`
}

// SecurityLogger writes authentication audit events.
type SecurityLogger struct {
	logger *slog.Logger
	clock  Clock
}

// NewSecurityLogger creates an audit logger. A nil logger disables auditing.
func NewSecurityLogger(logger *slog.Logger) *SecurityLogger {
	return &SecurityLogger{logger: logger, clock: realClock{}}
}

// LogAuthentication logs one handshake event.
func (l *SecurityLogger) LogAuthentication(a *Attempt, subtype, severity string, details map[string]any) {
	if l == nil || l.logger == nil {
		return
	}
	if details == nil {
		details = make(map[string]any)
	}
	details["mechanism"] = a.Mechanism
	details["continuation"] = a.Continuation

	action := "AcceptSecurityContext"
	if subtype == SubtypeAuthAttempt {
		action = "Challenge"
	}
	event := &SecurityEvent{
		Timestamp:     l.clock.Now().UTC().Format(time.RFC3339),
		EventType:     EventAuthentication,
		Subtype:       subtype,
		Severity:      severity,
		User:          a.Principal,
		Source:        a.Source,
		Target:        a.Target,
		CorrelationID: a.Correlation,
		Action:        action,
		Outcome:       string(a.Outcome),
		Details:       details,
	}

	switch severity {
	case SeverityWarning:
		l.logger.Warn("SecurityEvent", "event", event)
	case SeverityError:
		l.logger.Error("SecurityEvent", "event", event)
	default:
		l.logger.Info("SecurityEvent", "event", event)
	}
}
