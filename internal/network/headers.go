// File: internal/network/headers.go
package network

import (
	"net/http"

	"github.com/xkilldash9x/checkin-cli/internal/config"
)

// BuildActionHeaders assembles the header set sent with the action request.
// The target fronts its API with bot filtering, so the headers mimic what its
// own web console sends; caller-supplied extra headers win on conflict.
func BuildActionHeaders(httpCfg config.HTTPConfig, target config.TargetConfig) (http.Header, error) {
	h := http.Header{}
	h.Set("User-Agent", httpCfg.UserAgent)
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	h.Set("Referer", target.Resolve("/console"))
	h.Set("Origin", target.Resolve(""))
	h.Set("X-Requested-With", "XMLHttpRequest")

	if v, ok := httpCfg.NewAPIUserValue(); ok {
		h.Set("New-Api-User", v)
	}

	extra, err := config.ParseHeaderSpec(httpCfg.ExtraHeaders)
	if err != nil {
		return nil, err
	}
	for k, v := range extra {
		h.Set(k, v)
	}
	return h, nil
}

// ApplyHeaders copies a header set onto a request without clobbering values
// already present on the request itself.
func ApplyHeaders(req *http.Request, headers http.Header) {
	for k, vs := range headers {
		if req.Header.Get(k) != "" {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
}
