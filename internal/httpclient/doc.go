// Package httpclient executes the GET request each worker cycle issues.
//
// [NewClient] builds an [net/http.Client] with connection reuse sized for a
// single target host. [Prober] implements the runner's Requester: it fetches
// the target, reads the full body and classifies the result.
//
// A request counts as an error when the transport fails, the body cannot be
// read, the status is outside 2xx, or the body is shorter than the configured
// minimum. Transport failures carry status 599 so they show up in the status
// breakdown next to real responses.
//
//	client := httpclient.NewClient(cfg.Timeout)
//	prober, err := httpclient.NewProber(client, httpclient.ProberOptions{URL: cfg.TargetURL})
//	if err != nil {
//		return err
//	}
//	outcome := prober.Do(ctx)
package httpclient
