package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

const (
	auditEventVersion = 1
	auditLogMessage   = "audit"
)

type AuditInput struct {
	EventName   string
	ActorUserID string
	TargetType  string
	TargetID    string
	Action      string
	Outcome     string
	Reason      string
}

// AuditEvent is the stable record shape shipped to log sinks. Bump
// auditEventVersion when a field changes meaning.
type AuditEvent struct {
	EventVersion int    `json:"event_version"`
	EventName    string `json:"event_name"`
	ActorUserID  string `json:"actor_user_id"`
	ActorIP      string `json:"actor_ip"`
	TargetType   string `json:"target_type"`
	TargetID     string `json:"target_id"`
	Action       string `json:"action"`
	Outcome      string `json:"outcome"`
	Reason       string `json:"reason"`
	RequestID    string `json:"request_id"`
	TS           string `json:"ts"`
}

func BuildAuditEvent(r *http.Request, in AuditInput) AuditEvent {
	return AuditEvent{
		EventVersion: auditEventVersion,
		EventName:    in.EventName,
		ActorUserID:  orDefault(in.ActorUserID, "anonymous"),
		ActorIP:      clientIP(r),
		TargetType:   in.TargetType,
		TargetID:     orDefault(in.TargetID, "unknown"),
		Action:       in.Action,
		Outcome:      in.Outcome,
		Reason:       orDefault(in.Reason, "none"),
		RequestID:    orDefault(requestID(r), "unknown"),
		TS:           time.Now().UTC().Format(time.RFC3339),
	}
}

func (e AuditEvent) fields() [][2]string {
	return [][2]string{
		{"event_name", e.EventName},
		{"actor_user_id", e.ActorUserID},
		{"actor_ip", e.ActorIP},
		{"target_type", e.TargetType},
		{"target_id", e.TargetID},
		{"action", e.Action},
		{"outcome", e.Outcome},
		{"reason", e.Reason},
		{"request_id", e.RequestID},
		{"ts", e.TS},
	}
}

func (e AuditEvent) Validate() error {
	if e.EventVersion != auditEventVersion {
		return fmt.Errorf("unsupported audit event version %d", e.EventVersion)
	}
	var missing []string
	for _, f := range e.fields() {
		if strings.TrimSpace(f[1]) == "" {
			missing = append(missing, f[0])
		}
	}
	if len(missing) > 0 {
		return errors.New("audit event missing fields: " + strings.Join(missing, ","))
	}
	return nil
}

// EmitAudit writes a versioned audit record. Invalid events are still
// logged, flagged with audit_invalid so they can be found later.
func EmitAudit(r *http.Request, in AuditInput) {
	ev := BuildAuditEvent(r, in)
	attrs := make([]slog.Attr, 0, 12)
	attrs = append(attrs, slog.Int("event_version", ev.EventVersion))
	for _, f := range ev.fields() {
		attrs = append(attrs, slog.String(f[0], f[1]))
	}
	if err := ev.Validate(); err != nil {
		attrs = append(attrs, slog.String("audit_invalid", err.Error()))
	}
	slog.LogAttrs(context.WithoutCancel(r.Context()), slog.LevelInfo, auditLogMessage, attrs...)
}

// Audit records an auth flow step named "auth.<action>.<outcome>". A
// "user_id" pair becomes the actor and target, and "reason" the reason.
func Audit(r *http.Request, event string, kv ...any) {
	in := AuditInput{EventName: event, TargetType: "user"}
	in.Action, in.Outcome = splitAuditEvent(event)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		switch key {
		case "user_id":
			in.ActorUserID = fmt.Sprint(kv[i+1])
			in.TargetID = in.ActorUserID
		case "reason":
			in.Reason = fmt.Sprint(kv[i+1])
		}
	}
	EmitAudit(r, in)
}

// splitAuditEvent turns "auth.recover_password.requested" into
// ("recover_password", "requested").
func splitAuditEvent(event string) (action, outcome string) {
	rest := strings.TrimPrefix(event, "auth.")
	i := strings.IndexByte(rest, '.')
	if i < 0 {
		return rest, ""
	}
	return rest[:i], rest[i+1:]
}

func requestID(r *http.Request) string {
	if id := chimiddleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return r.Header.Get(chimiddleware.RequestIDHeader)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return orDefault(host, "unknown")
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
