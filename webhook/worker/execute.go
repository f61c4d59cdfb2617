package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/marcelsud/commerce-webhooks/webhook"
)

/* Execute runs h for one delivery under timeout
 * A panic inside the handler becomes a failed Result, so a broken
 * handler can never take the process down. Used by the pool and by the
 * inline fallback of the ingest path.
 */
func Execute(ctx context.Context, h webhook.Handler, d webhook.Delivery, timeout time.Duration) (res webhook.Result) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			res = webhook.Result{Success: false, Error: fmt.Sprintf("handler panic: %v", r)}
		}
	}()

	res = h.Handle(ctx, d)
	if !res.Success && res.Error == "" {
		if err := ctx.Err(); err != nil {
			res.Error = fmt.Sprintf("handler timeout: %v", err)
		} else {
			res.Error = "handler failed"
		}
	}
	return res
}
