// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package proxy

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/samber/oops"
	"github.com/tidwall/gjson"

	"github.com/tessera-dev/tessera/pkg/errutil"
)

// maxErrorBody bounds how much of an upstream error body is inspected.
const maxErrorBody = 64 << 10

// CodeForStatus maps an upstream HTTP status to the proxy error taxonomy:
// 400 is PROXY_BAD_REQUEST, 404 is PROXY_NOT_FOUND, every other failure is
// PROXY_INTERNAL. Statuses below 400 are not errors and map to "".
func CodeForStatus(status int) string {
	switch {
	case status < http.StatusBadRequest:
		return ""
	case status == http.StatusBadRequest:
		return errutil.CodeProxyBadRequest
	case status == http.StatusNotFound:
		return errutil.CodeProxyNotFound
	default:
		return errutil.CodeProxyInternal
	}
}

// upstreamError builds the local error for a failed upstream response,
// carrying the upstream's own message when its body offers one.
func upstreamError(pluginID, method string, status int, body []byte) error {
	msg := upstreamMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return oops.Code(CodeForStatus(status)).
		With("plugin_id", pluginID).
		With("method", method).
		With("upstream_status", status).
		Errorf("plugin service: %s", msg)
}

// upstreamMessage extracts a message from common JSON error shapes:
// {"error":{"message":...}}, {"error":"..."} and {"message":"..."}.
func upstreamMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	for _, path := range []string{"error.message", "error", "message"} {
		if r := gjson.GetBytes(body, path); r.Type == gjson.String {
			return r.String()
		}
	}
	return ""
}

// envelopeFor renders err as the JSON error envelope.
func envelopeFor(err error) []byte {
	data, _ := json.Marshal(errutil.Envelope{Error: &errutil.ErrorBody{ //nolint:errchkjson // fixed shape
		Code:    errutil.CodeOf(err),
		Message: err.Error(),
	}})
	return data
}
