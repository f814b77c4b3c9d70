package dispatcher

import "context"

// Logger is the narrow Start/End contract the dispatcher calls into,
// satisfied by internal/requestlog.Service. Declared here rather than
// imported so the dispatcher has no dependency on the logger's queueing,
// truncation, or persistence concerns — it only needs to mark a request's
// boundaries.
type Logger interface {
	Start(ctx context.Context, in StartInfo) string
	End(ctx context.Context, requestID string, out EndInfo)
}

// StartInfo is everything known about a request before it is routed.
type StartInfo struct {
	Method     string
	Endpoint   string
	Body       []byte
	ProxyKeyID *uint
	SourceIP   string
	UserAgent  string
}

// EndInfo is everything known once a request has a final outcome (success,
// terminal failure, or exhausted retries).
type EndInfo struct {
	StatusCode       int
	Body             []byte
	Err              error
	GroupID          string
	ProviderType     string
	Model            string
	IsStreaming      bool
	UpstreamKey      string
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

func (d *Dispatcher) startLog(ctx context.Context, in Input) string {
	if d.logger == nil {
		return ""
	}
	var proxyKeyID *uint
	if in.ProxyKey != nil {
		id := in.ProxyKey.ID
		proxyKeyID = &id
	}
	return d.logger.Start(ctx, StartInfo{
		Method:     in.Method,
		Endpoint:   in.Endpoint,
		Body:       in.Body,
		ProxyKeyID: proxyKeyID,
		SourceIP:   in.SourceIP,
		UserAgent:  in.UserAgent,
	})
}

func (d *Dispatcher) endLog(ctx context.Context, requestID string, in Input, result *Result, statusCode int, err error) {
	if d.logger == nil {
		return
	}
	out := EndInfo{
		StatusCode:  statusCode,
		Err:         err,
		IsStreaming: in.Streaming,
	}
	if result != nil {
		out.Body = result.Body
		out.GroupID = result.GroupID
		out.ProviderType = string(result.ProviderType)
		out.Model = result.Model
		out.IsStreaming = result.Streaming
		out.UpstreamKey = result.UpstreamKey
		if !result.Streaming {
			out.PromptTokens, out.CompletionTokens, out.TotalTokens = parseTokenUsage(result.ProviderType, result.Body)
		}
	}
	d.logger.End(ctx, requestID, out)
}
