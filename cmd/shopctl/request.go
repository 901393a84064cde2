package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopdash/dataaccess/api"
	"github.com/shopdash/dataaccess/config"
	"github.com/shopdash/dataaccess/resilience"
	"github.com/shopdash/dataaccess/tui"
	"github.com/spf13/cobra"
)

func (a *app) requestCommand(method string) *cobra.Command {
	var (
		data       string
		headers    []string
		invalidate []string
		watch      string
		retries    int
	)
	cmd := &cobra.Command{
		Use:   strings.ToLower(method) + " <path>",
		Short: fmt.Sprintf("Send a %s request", method),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &api.RequestOptions{Method: method, Invalidate: invalidate}
			if len(headers) > 0 {
				opts.Headers = make(map[string]string, len(headers))
				for _, h := range headers {
					k, v, ok := strings.Cut(h, ":")
					if !ok {
						return errors.Newf("invalid header %q, expected \"Name: value\"", h)
					}
					opts.Headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
				}
			}
			if data != "" {
				if !json.Valid([]byte(data)) {
					return errors.New("--data must be valid JSON")
				}
				opts.Body = json.RawMessage(data)
			}
			if watch != "" {
				interval, err := config.ParseDuration(watch)
				if err != nil {
					return err
				}
				if interval <= 0 {
					return errors.New("--watch must be positive")
				}
				return a.watch(cmd.Context(), args[0], opts, interval)
			}
			return a.request(cmd.Context(), args[0], opts, retries)
		},
	}
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra request header, \"Name: value\"")
	if method == http.MethodGet {
		cmd.Flags().StringVar(&watch, "watch", "", "re-fetch on this interval, e.g. 5s")
		cmd.Flags().IntVar(&retries, "retries", 0, "retry timeouts and transient server errors this many times")
	} else {
		cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
		cmd.Flags().StringArrayVar(&invalidate, "invalidate", nil, "cached paths to drop after success")
	}
	return cmd
}

func (a *app) fetch(ctx context.Context, path string, opts *api.RequestOptions) ([]byte, error) {
	if !a.interactive() {
		return a.client.Request(ctx, path, opts)
	}
	var (
		body []byte
		err  error
	)
	if spinErr := tui.ShowSpinner(ctx, opts.Method+" "+path, func() {
		body, err = a.client.Request(ctx, path, opts)
	}); spinErr != nil {
		return nil, spinErr
	}
	return body, err
}

func (a *app) request(ctx context.Context, path string, opts *api.RequestOptions, retries int) error {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxRetries = retries
	var body []byte
	err := resilience.Retry(ctx, cfg, func(ctx context.Context) error {
		var err error
		body, err = a.fetch(ctx, path, opts)
		return err
	})
	if err != nil {
		return err
	}
	return a.print(body)
}

func (a *app) watch(ctx context.Context, path string, opts *api.RequestOptions, interval time.Duration) error {
	fresh := *opts
	fresh.SkipCache = true
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if a.interactive() {
			tui.Redraw(tui.WatchHeader(path, interval, time.Now()))
		}
		body, err := a.client.Request(ctx, path, &fresh)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			renderError(a.errOut, err)
			if api.IsSessionEnded(err) {
				return err
			}
		} else if err := a.print(body); err != nil {
			return err
		}
		fmt.Fprintln(a.out, tui.Muted(fmt.Sprintf("refreshing every %s, ctrl-c to stop", interval)))
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *app) print(body []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return errors.Wrap(err, "error formatting response")
	}
	buf.WriteByte('\n')
	_, err := a.out.Write(buf.Bytes())
	return err
}
