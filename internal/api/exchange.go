package api

import (
	"github.com/valyala/fasthttp"
)

// exchange is one pooled request/response pair. It must be released on
// every path, and nothing read from it may outlive release.
type exchange struct {
	req  *fasthttp.Request
	resp *fasthttp.Response
}

func acquireExchange() *exchange {
	return &exchange{
		req:  fasthttp.AcquireRequest(),
		resp: fasthttp.AcquireResponse(),
	}
}

func (e *exchange) release() {
	fasthttp.ReleaseRequest(e.req)
	fasthttp.ReleaseResponse(e.resp)
	e.req, e.resp = nil, nil
}

func (e *exchange) header(name string) string {
	return string(e.resp.Header.Peek(name))
}
