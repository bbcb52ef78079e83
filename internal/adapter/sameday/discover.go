package sameday

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DiscoverEndpoint probes candidate base URLs and reports the first one
// whose authenticate endpoint answers at all. Diagnostic only: operations
// always use the single configured base URL, never this probe.
func DiscoverEndpoint(ctx context.Context, candidates []string) (string, error) {
	httpc := &http.Client{Timeout: 5 * time.Second}
	for _, base := range candidates {
		base = strings.TrimRight(base, "/")
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/authenticate", nil)
		if err != nil {
			continue
		}
		resp, err := httpc.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		// Any HTTP answer, including 401, means the host speaks the API.
		if resp.StatusCode < 500 {
			return base, nil
		}
	}
	return "", errors.New("sameday: no candidate endpoint reachable")
}
