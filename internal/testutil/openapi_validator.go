package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/bissquit/content-notifier/api/openapi"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

const maxReportedBody = 300

// probePaths answer with plain text and are not described as JSON.
var probePaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
}

// OpenAPIValidator checks exchanges against the embedded API document.
type OpenAPIValidator struct {
	doc    *openapi3.T
	router routers.Router
}

// NewOpenAPIValidator loads the validator or fails the test.
func NewOpenAPIValidator(t *testing.T) *OpenAPIValidator {
	t.Helper()

	v, err := LoadOpenAPIValidator()
	if err != nil {
		t.Fatalf("load OpenAPI validator: %v", err)
	}
	return v
}

// LoadOpenAPIValidator parses and validates the embedded document. It is for
// TestMain, where no *testing.T exists.
func LoadOpenAPIValidator() (*OpenAPIValidator, error) {
	doc, err := openapi3.NewLoader().LoadFromData(openapi.Spec)
	if err != nil {
		return nil, fmt.Errorf("parse api document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid api document: %w", err)
	}

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}
	return &OpenAPIValidator{doc: doc, router: router}, nil
}

// route resolves method and path, ignoring scheme and host so requests to an
// httptest server match the document.
func (v *OpenAPIValidator) route(req *http.Request) (*routers.Route, map[string]string, error) {
	probe, err := http.NewRequest(req.Method, req.URL.RequestURI(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build route probe: %w", err)
	}
	route, params, err := v.router.FindRoute(probe)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s is not documented: %w", req.Method, req.URL.Path, err)
	}
	return route, params, nil
}

func (v *OpenAPIValidator) requestInput(req *http.Request) (*openapi3filter.RequestValidationInput, error) {
	route, params, err := v.route(req)
	if err != nil {
		return nil, err
	}
	return &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: params,
		Route:      route,
		Options: &openapi3filter.Options{
			MultiError:         true,
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	}, nil
}

// CheckRequest returns the first contract violation of req, if any.
func (v *OpenAPIValidator) CheckRequest(req *http.Request) error {
	if probePaths[req.URL.Path] {
		return nil
	}
	input, err := v.requestInput(req)
	if err != nil {
		return err
	}
	return openapi3filter.ValidateRequest(context.Background(), input)
}

// CheckResponse validates resp against the operation matched by req. The
// response body is read and restored.
func (v *OpenAPIValidator) CheckResponse(req *http.Request, resp *http.Response) error {
	if probePaths[req.URL.Path] {
		return nil
	}
	input, err := v.requestInput(req)
	if err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	err = openapi3filter.ValidateResponse(context.Background(), &openapi3filter.ResponseValidationInput{
		RequestValidationInput: input,
		Status:                 resp.StatusCode,
		Header:                 resp.Header,
		Body:                   io.NopCloser(bytes.NewReader(body)),
		Options: &openapi3filter.Options{
			MultiError:            true,
			IncludeResponseStatus: true,
		},
	})
	if err != nil {
		return fmt.Errorf("status %d: %w\nbody: %s", resp.StatusCode, err, clip(string(body)))
	}
	return nil
}

// ValidateRequest reports request violations on t.
func (v *OpenAPIValidator) ValidateRequest(t *testing.T, req *http.Request) {
	t.Helper()
	if err := v.CheckRequest(req); err != nil {
		t.Errorf("OpenAPI request %s %s: %s", req.Method, req.URL.Path, clip(err.Error()))
	}
}

// ValidateResponse reports response violations on t.
func (v *OpenAPIValidator) ValidateResponse(t *testing.T, req *http.Request, resp *http.Response) {
	t.Helper()
	if err := v.CheckResponse(req, resp); err != nil {
		t.Errorf("OpenAPI response %s %s: %s", req.Method, req.URL.Path, err)
	}
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxReportedBody {
		return s[:maxReportedBody] + "..."
	}
	return s
}
