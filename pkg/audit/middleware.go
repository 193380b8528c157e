package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hazyhaar/proofledger/pkg/kit"
)

// Recorder builds audit middlewares that share a logger, a classifier and a
// height source.
type Recorder struct {
	Logger   Logger
	Classify Classifier
	Height   HeightFunc
}

// Middleware wraps an Endpoint: measures duration, captures params/result/error,
// and logs asynchronously via the Logger.
func (r Recorder) Middleware(actionName string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, request any) (any, error) {
			start := time.Now()

			resp, err := next(ctx, request)

			entry := &Entry{
				Action:     actionName,
				Transport:  kit.GetTransport(ctx),
				UserID:     kit.GetUserID(ctx),
				RequestID:  kit.GetRequestID(ctx),
				DurationMs: time.Since(start).Milliseconds(),
			}
			if r.Height != nil {
				entry.Height = r.Height(ctx)
			}

			if params, e := json.Marshal(request); e == nil {
				entry.Parameters = string(params)
			}
			if err != nil {
				entry.Error = err.Error()
				entry.Status = "error"
				if r.Classify != nil {
					if kind := r.Classify(err); kind != "" {
						entry.ErrorKind = kind
						entry.Status = "rejected"
					}
				}
			} else {
				entry.Status = "success"
				if result, e := json.Marshal(resp); e == nil {
					entry.Result = string(result)
				}
			}

			r.Logger.LogAsync(entry)
			return resp, err
		}
	}
}
