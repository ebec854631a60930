package contracts

// TraceContext correlates one consumption attempt across logs and sinks.
type TraceContext struct {
	TraceID   string
	Source    string
	Consumer  string
	MessageID string
	Attempt   int64
}

func (t TraceContext) Fields() map[string]interface{} {
	return map[string]interface{}{
		"trace_id":   t.TraceID,
		"source":     t.Source,
		"consumer":   t.Consumer,
		"message_id": t.MessageID,
		"attempt":    t.Attempt,
	}
}
