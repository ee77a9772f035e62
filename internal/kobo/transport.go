package kobo

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// doAuthorized issues req with the current access token and transparently
// repairs an expired-token response: on a 401 it refreshes the token pair
// and resends the original request exactly once. The retried request is not
// eligible for another repair, so a persistently invalid refresh token
// surfaces as an error instead of looping. Every other non-2xx status
// propagates as a StatusError.
func (c *Client) doAuthorized(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.user.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return checkStatus(resp)
	}

	// Consume the failed response so the retried request can reuse the
	// same connection.
	drain(resp)

	c.log.Debug().Str("url", req.URL.String()).Msg("refreshing expired authentication token")
	if err := c.refreshAuthentication(); err != nil {
		return nil, err
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+c.user.AccessToken)

	resp, err = c.http.Do(retry)
	if err != nil {
		return nil, err
	}
	return checkStatus(resp)
}

// getJSON resolves a request through the executor and decodes the body.
// Extra headers, when given, are attached to the request. The response
// headers are returned for callers that read continuation signals.
func (c *Client) getJSON(url string, header http.Header, out interface{}) (http.Header, error) {
	req, err := c.newRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.doAuthorized(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return resp.Header, nil
}

// checkStatus passes 2xx responses through and converts everything else
// into a StatusError, releasing the body.
func checkStatus(resp *http.Response) (*http.Response, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	drain(resp)
	return nil, &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		URL:        resp.Request.URL.String(),
	}
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
