package tangguh

import "context"

// Interceptor observes and transforms requests and responses around the
// transport call.
//
// OnRequest hooks run in registration order before the transport; each
// receives the output of the previous. Returning a non-nil Response
// short-circuits the chain: remaining OnRequest hooks and the transport are
// skipped (the cache interceptor uses this for hits). Returning an error
// aborts the attempt.
//
// OnResponse and OnError run in reverse registration order after the
// transport, mirroring a stack discipline: the last interceptor to touch the
// request is the first to see the response. OnError may recover a failure
// into a synthetic Response by returning (resp, nil).
type Interceptor interface {
	OnRequest(ctx context.Context, req *Request) (*Request, *Response, error)
	OnResponse(ctx context.Context, req *Request, resp *Response) (*Response, error)
	OnError(ctx context.Context, req *Request, err error) (*Response, error)
}

// InterceptorFuncs adapts plain functions to the Interceptor interface.
// Nil fields behave as identity hooks.
type InterceptorFuncs struct {
	Request  func(ctx context.Context, req *Request) (*Request, *Response, error)
	Response func(ctx context.Context, req *Request, resp *Response) (*Response, error)
	Error    func(ctx context.Context, req *Request, err error) (*Response, error)
}

// OnRequest implements Interceptor.
func (f InterceptorFuncs) OnRequest(ctx context.Context, req *Request) (*Request, *Response, error) {
	if f.Request == nil {
		return req, nil, nil
	}
	return f.Request(ctx, req)
}

// OnResponse implements Interceptor.
func (f InterceptorFuncs) OnResponse(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	if f.Response == nil {
		return resp, nil
	}
	return f.Response(ctx, req, resp)
}

// OnError implements Interceptor.
func (f InterceptorFuncs) OnError(ctx context.Context, req *Request, err error) (*Response, error) {
	if f.Error == nil {
		return nil, err
	}
	return f.Error(ctx, req, err)
}

// interceptorChain runs an ordered interceptor sequence around a transport
// execution for one attempt.
type interceptorChain struct {
	interceptors []Interceptor
}

// execute runs the request hooks, the transport (unless short-circuited) and
// then unwinds the response/error hooks over the interceptors whose
// OnRequest actually ran.
func (ch *interceptorChain) execute(ctx context.Context, req *Request, transport Transport) (*Response, error) {
	cur := req
	applied := 0

	for _, ic := range ch.interceptors {
		next, synthetic, err := ic.OnRequest(ctx, cur)
		if err != nil {
			return ch.unwind(ctx, cur, applied, nil, err)
		}
		if synthetic != nil {
			// Short-circuit: skip remaining OnRequest hooks and the
			// transport. Interceptors already applied still see the
			// response on the way out.
			return ch.unwind(ctx, cur, applied, synthetic, nil)
		}
		if next != nil {
			cur = next
		}
		applied++
	}

	resp, err := transport.Execute(ctx, cur)
	return ch.unwind(ctx, cur, applied, resp, err)
}

func (ch *interceptorChain) unwind(ctx context.Context, req *Request, applied int, resp *Response, err error) (*Response, error) {
	for i := applied - 1; i >= 0; i-- {
		ic := ch.interceptors[i]
		if err != nil {
			recovered, hookErr := ic.OnError(ctx, req, err)
			if recovered != nil && hookErr == nil {
				resp, err = recovered, nil
				continue
			}
			err = hookErr
			continue
		}
		resp, err = ic.OnResponse(ctx, req, resp)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}
