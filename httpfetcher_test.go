// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zsync

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/hooklift/assert"
)

// scriptedDoer replays a fixed sequence of responses keyed by the request
// URL it receives, standing in for a server issuing a redirect chain.
type scriptedDoer struct {
	responses map[string]*http.Response
	requested []string
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	d.requested = append(d.requested, req.URL.String())
	resp, ok := d.responses[req.URL.String()]
	if !ok {
		return nil, errors.New("scriptedDoer: no response scripted for " + req.URL.String())
	}
	return resp, nil
}

func newResponse(status int, location, body string) *http.Response {
	header := http.Header{}
	if location != "" {
		header.Set("Location", location)
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// TestFollowRedirectsResolvesChain exercises spec §8 scenario G: a
// 301 -> 302 -> 307 chain, each Location relative to the hop before it,
// ending in a 200 whose URL is what the caller resolves subsequent
// references against.
func TestFollowRedirectsResolvesChain(t *testing.T) {
	doer := &scriptedDoer{responses: map[string]*http.Response{
		"http://example.test/a.zsync": newResponse(http.StatusMovedPermanently, "/b.zsync", ""),
		"http://example.test/b.zsync": newResponse(http.StatusFound, "/sub/c.zsync", ""),
		"http://example.test/sub/c.zsync": newResponse(http.StatusTemporaryRedirect, "final.zsync", ""),
		"http://example.test/sub/final.zsync": newResponse(http.StatusOK, "", "control file body"),
	}}

	resp, finalURL, err := FollowRedirects(context.Background(), doer, "http://example.test/a.zsync", nil)
	assert.Ok(t, err)
	defer resp.Body.Close()

	assert.Equals(t, "http://example.test/sub/final.zsync", finalURL)

	body, err := io.ReadAll(resp.Body)
	assert.Ok(t, err)
	assert.Equals(t, "control file body", string(body))
}

// TestFollowRedirectsNoLocationHeader exercises spec §8 scenario H: a bare
// 301 with no Location header must fail with ErrNoLocationHeader.
func TestFollowRedirectsNoLocationHeader(t *testing.T) {
	doer := &scriptedDoer{responses: map[string]*http.Response{
		"http://example.test/a.zsync": newResponse(http.StatusMovedPermanently, "", ""),
	}}

	_, _, err := FollowRedirects(context.Background(), doer, "http://example.test/a.zsync", nil)
	assert.Cond(t, err != nil, "a Location-less redirect must fail")

	var syncErr *SyncError
	assert.Cond(t, errors.As(err, &syncErr), "error must be a *SyncError")
	assert.Equals(t, ErrNoLocationHeader, syncErr.Kind)
}

// TestFollowRedirectsHTTPStatus exercises spec §8 scenario I: a 404 must
// fail with HttpStatus(404, ...).
func TestFollowRedirectsHTTPStatus(t *testing.T) {
	doer := &scriptedDoer{responses: map[string]*http.Response{
		"http://example.test/missing.zsync": newResponse(http.StatusNotFound, "", "not found"),
	}}

	_, _, err := FollowRedirects(context.Background(), doer, "http://example.test/missing.zsync", nil)
	assert.Cond(t, err != nil, "a 404 must fail")

	var syncErr *SyncError
	assert.Cond(t, errors.As(err, &syncErr), "error must be a *SyncError")
	assert.Equals(t, ErrHTTPStatus, syncErr.Kind)
	assert.Equals(t, http.StatusNotFound, syncErr.StatusCode)
}

// TestHTTPRangeFetcherFetchOneFollowsRedirect checks that the range
// fetcher itself, not just FollowRedirects in isolation, resolves a
// redirect before streaming range bytes.
func TestHTTPRangeFetcherFetchOneFollowsRedirect(t *testing.T) {
	doer := &scriptedDoer{responses: map[string]*http.Response{
		"http://example.test/data.bin": newResponse(http.StatusFound, "http://mirror.test/data.bin", ""),
		"http://mirror.test/data.bin":  newResponse(http.StatusPartialContent, "", "0123456789"),
	}}

	f := NewHTTPRangeFetcher(doer)
	ch, err := f.FetchRanges(context.Background(), "http://example.test/data.bin", []ByteRange{{Start: 0, End: 9}})
	assert.Ok(t, err)

	var got []byte
	for chunk := range ch {
		assert.Ok(t, chunk.Err)
		got = append(got, chunk.Data...)
	}
	assert.Equals(t, "0123456789", string(got))

	// The Range header must have been carried on the final, resolved
	// request, not only the first one.
	last := doer.requested[len(doer.requested)-1]
	assert.Equals(t, "http://mirror.test/data.bin", last)
}
