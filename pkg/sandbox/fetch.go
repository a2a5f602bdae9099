package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dop251/goja"
)

type fetchOptions struct {
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body"`
}

// fetch returns the only network capability a script receives. It performs
// the request synchronously and hands back an already-settled promise whose
// response exposes status, ok, json() and text().
func (s *Sandbox) fetch(ctx context.Context, vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		promise, resolve, reject := vm.NewPromise()

		rawURL := call.Argument(0).String()

		var options fetchOptions

		if arg := call.Argument(1); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			err := vm.ExportTo(arg, &options)
			if err != nil {
				reject(vm.NewTypeError("fetch: invalid options: %v", err))

				return vm.ToValue(promise)
			}
		}

		status, body, err := s.doFetch(ctx, rawURL, options)
		if err != nil {
			reject(vm.NewGoError(err))

			return vm.ToValue(promise)
		}

		resolve(newResponse(vm, status, body))

		return vm.ToValue(promise)
	}
}

func (s *Sandbox) doFetch(ctx context.Context, rawURL string, options fetchOptions) (int, []byte, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return 0, nil, fmt.Errorf("fetch: invalid url %q: %w", rawURL, err)
	}

	if target.Scheme != "http" && target.Scheme != "https" {
		return 0, nil, newSecurityError(fmt.Sprintf("fetch: scheme %q is not allowed", target.Scheme))
	}

	method := strings.ToUpper(options.Method)
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader

	switch body := options.Body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(body)
	default:
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("fetch: failed to encode body: %w", err)
		}

		reader = strings.NewReader(string(raw))
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("fetch: failed to create request: %w", err)
	}

	for key, value := range options.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.config.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("fetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("fetch: failed to read response: %w", err)
	}

	return resp.StatusCode, payload, nil
}

func newResponse(vm *goja.Runtime, status int, body []byte) *goja.Object {
	response := vm.NewObject()

	_ = response.Set("status", status)
	_ = response.Set("ok", status >= 200 && status < 300)

	_ = response.Set("text", func(goja.FunctionCall) goja.Value {
		promise, resolve, _ := vm.NewPromise()
		resolve(string(body))

		return vm.ToValue(promise)
	})

	_ = response.Set("json", func(goja.FunctionCall) goja.Value {
		promise, resolve, reject := vm.NewPromise()

		var parsed any

		err := json.Unmarshal(body, &parsed)
		if err != nil {
			reject(vm.NewTypeError("fetch: response is not valid JSON: %v", err))
		} else {
			resolve(parsed)
		}

		return vm.ToValue(promise)
	})

	return response
}
