// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package notify delivers run reports to a webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.astrophena.name/base/request"
)

// Send POSTs v encoded as JSON to url. A response status outside of 2xx is an
// error. If client is nil, request.DefaultClient is used.
func Send(ctx context.Context, client *http.Client, url string, v any) error {
	if client == nil {
		client = request.DefaultClient
	}

	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "newsmap-publish")

	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%s: wanted 2xx, got %d: %s", url, res.StatusCode, bytes.TrimSpace(b))
	}
	return nil
}
