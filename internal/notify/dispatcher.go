// Package notify delivers change events to the host application.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Dispatcher posts events to a webhook. With no URL configured every
// dispatch is a no-op.
type Dispatcher struct {
	url     string
	client  *http.Client
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher posting to url.
func NewDispatcher(url string) *Dispatcher {
	return &Dispatcher{
		url:     url,
		timeout: 10 * time.Second,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled reports whether a webhook is configured.
func (d *Dispatcher) Enabled() bool { return d != nil && d.url != "" }

// Dispatch stamps e and POSTs it to the webhook.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) error {
	if !d.Enabled() {
		return nil
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	return d.SendWebhook(ctx, d.url, payload)
}

// Go dispatches e in the background, detached from any request. Failures
// are logged and otherwise ignored.
func (d *Dispatcher) Go(e Event) {
	if !d.Enabled() {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.Dispatch(ctx, e); err != nil {
			log.Printf("notify: dispatching %s for recipe %d: %v", e.Type, e.RecipeID, err)
		}
	}()
}

// Wait blocks until every background dispatch has finished.
func (d *Dispatcher) Wait() {
	if d != nil {
		d.wg.Wait()
	}
}

// SendWebhook POSTs payload to the given URL.
func (d *Dispatcher) SendWebhook(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
