package httpclient

import (
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Response is the result of a completed exchange. A 4xx or 5xx status is
// still a Response; check IsSuccess or IsError.
//
// Example usage:
//
//	resp, err := httpclient.NewRequest().AcceptJSON().Get(ctx, "https://api.example.com/users", nil)
//	if err != nil {
//	    return err
//	}
//	if resp.IsError() {
//	    return fmt.Errorf("list users: %s", resp.Status())
//	}
//	name := resp.Get("0.name").String()
type Response struct {
	raw     *RawResponse
	request *ResolvedRequest

	// curlCommand is only populated with WithGenerateCurl(true).
	curlCommand string
}

func newResponse(raw *RawResponse, req *ResolvedRequest, generateCurl bool) *Response {
	resp := &Response{raw: raw, request: req}
	if generateCurl {
		resp.curlCommand = CurlCommand(req)
	}
	return resp
}

// Raw returns the transport-level response.
func (r *Response) Raw() *RawResponse { return r.raw }

// Request returns the resolved request that produced this response.
func (r *Response) Request() *ResolvedRequest { return r.request }

func (r *Response) StatusCode() int { return r.raw.StatusCode }

// Status returns the status line text, e.g. "200 OK".
func (r *Response) Status() string { return r.raw.Status }

func (r *Response) Header() http.Header { return r.raw.Header }

func (r *Response) Body() []byte { return r.raw.Body }

func (r *Response) String() string { return string(r.raw.Body) }

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.raw.Body, v)
}

// Get looks up a gjson path in a JSON body, e.g. "data.items.#.id".
func (r *Response) Get(path string) gjson.Result {
	return gjson.GetBytes(r.raw.Body, path)
}

// IsJSON reports whether the Content-Type announces JSON.
func (r *Response) IsJSON() bool {
	ct := strings.ToLower(r.raw.Header.Get("Content-Type"))
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "+json")
}

// IsSuccess returns true if the response status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.raw.StatusCode >= 200 && r.raw.StatusCode < 300
}

// IsRedirect returns true if the response status code is 3xx.
func (r *Response) IsRedirect() bool {
	return r.raw.StatusCode >= 300 && r.raw.StatusCode < 400
}

// IsError returns true if the response status code is 4xx or 5xx.
func (r *Response) IsError() bool {
	return r.raw.StatusCode >= 400
}

func (r *Response) IsClientError() bool {
	return r.raw.StatusCode >= 400 && r.raw.StatusCode < 500
}

func (r *Response) IsServerError() bool {
	return r.raw.StatusCode >= 500
}

// RequestHeaders returns the header lines actually sent on the wire.
func (r *Response) RequestHeaders() []string { return r.raw.RequestHeaders }

// CurlCommand returns the cURL command equivalent for this request.
//
// This is only populated if WithGenerateCurl(true) was set on the client.
func (r *Response) CurlCommand() string { return r.curlCommand }

// TraceInfo returns timing information for this request.
//
// This is only populated if EnableTrace() was called on the RequestBuilder.
func (r *Response) TraceInfo() *TraceInfo { return r.raw.Trace }
