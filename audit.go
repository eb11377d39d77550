package goSession

import (
	"github.com/MrEthical07/goSession/internal/audit"
)

// AuditEvent is one session lifecycle record.
type AuditEvent = audit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers events in a channel, mainly for tests.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// AMQPSink publishes events to RabbitMQ.
type AMQPSink = audit.AMQPSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

// NewJSONWriterSink returns a sink writing to w.
var NewJSONWriterSink = audit.NewJSONWriterSink

// NewAMQPSink publishes through an open channel.
var NewAMQPSink = audit.NewAMQPSink

// DialAMQPSink connects to a broker and returns a sink owning the
// connection.
var DialAMQPSink = audit.DialAMQPSink

// Audit event types.
const (
	AuditLogin           = "login"
	AuditLoginFailed     = "login_failed"
	AuditRegister        = "register"
	AuditRegisterFailed  = "register_failed"
	AuditSessionRestored = "session_restored"
	AuditSessionCleared  = "session_cleared"
	AuditTokenRefreshed  = "token_refreshed"
	AuditProfileUpdated  = "profile_updated"
	AuditPasswordChanged = "password_changed"
	AuditAvatarUploaded  = "avatar_uploaded"
)
