// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

// Package errutil holds the error code taxonomy shared by every Tessera
// component plus helpers for logging and asserting oops errors.
package errutil

import (
	"fmt"
	"net/http"

	"github.com/samber/oops"
)

// Error codes attached with oops.Code. Callers match on these rather than on
// message text.
const (
	CodeRegistrationInvalid          = "REGISTRATION_INVALID"
	CodeInstallationConflict         = "INSTALLATION_CONFLICT"
	CodeInvalidState                 = "INVALID_STATE"
	CodePluginNotFound               = "PLUGIN_NOT_FOUND"
	CodeInstallationNotFound         = "INSTALLATION_NOT_FOUND"
	CodeBundleNotFound               = "BUNDLE_NOT_FOUND"
	CodeBundleFetchFailed            = "BUNDLE_FETCH_FAILED"
	CodeBundleSyntaxError            = "BUNDLE_SYNTAX_ERROR"
	CodeSandboxRuntimeError          = "SANDBOX_RUNTIME_ERROR"
	CodeUnknownDependency            = "UNKNOWN_DEPENDENCY"
	CodeExtensionPointNotDeclared    = "EXTENSION_POINT_NOT_DECLARED"
	CodeExtensionPointNotImplemented = "EXTENSION_POINT_NOT_IMPLEMENTED"
	CodeInvalidImplementation        = "INVALID_EXTENSION_IMPLEMENTATION"
	CodeProxyBadRequest              = "PROXY_BAD_REQUEST"
	CodeProxyNotFound                = "PROXY_NOT_FOUND"
	CodeProxyInternal                = "PROXY_INTERNAL"
	CodeProxyForbidden               = "PROXY_FORBIDDEN"
	CodeRenderError                  = "RENDER_ERROR"
	CodeCapabilityDenied             = "CAPABILITY_DENIED"
	CodeUnauthorized                 = "UNAUTHORIZED"
	CodeInvalidRequest               = "INVALID_REQUEST"
)

var statusByCode = map[string]int{
	CodeRegistrationInvalid:          http.StatusBadRequest,
	CodeInstallationConflict:         http.StatusConflict,
	CodeInvalidState:                 http.StatusConflict,
	CodePluginNotFound:               http.StatusNotFound,
	CodeInstallationNotFound:         http.StatusNotFound,
	CodeBundleNotFound:               http.StatusNotFound,
	CodeBundleFetchFailed:            http.StatusBadGateway,
	CodeBundleSyntaxError:            http.StatusUnprocessableEntity,
	CodeSandboxRuntimeError:          http.StatusUnprocessableEntity,
	CodeUnknownDependency:            http.StatusUnprocessableEntity,
	CodeExtensionPointNotDeclared:    http.StatusBadRequest,
	CodeExtensionPointNotImplemented: http.StatusUnprocessableEntity,
	CodeInvalidImplementation:        http.StatusUnprocessableEntity,
	CodeProxyBadRequest:              http.StatusBadRequest,
	CodeProxyNotFound:                http.StatusNotFound,
	CodeProxyInternal:                http.StatusInternalServerError,
	CodeProxyForbidden:               http.StatusForbidden,
	CodeRenderError:                  http.StatusInternalServerError,
	CodeCapabilityDenied:             http.StatusForbidden,
	CodeUnauthorized:                 http.StatusUnauthorized,
	CodeInvalidRequest:               http.StatusBadRequest,
}

// CodeOf returns the oops code carried by err, or "" when err has none.
func CodeOf(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code := oopsErr.Code()
	if code == nil {
		return ""
	}
	if s, ok := code.(string); ok {
		return s
	}
	return fmt.Sprint(code)
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus maps an error to the status code returned over HTTP.
// Unknown or uncoded errors are internal errors.
func HTTPStatus(err error) int {
	if status, ok := statusByCode[CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
