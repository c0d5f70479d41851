package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPSearchIndexer posts re-index signals to the search engine's refresh
// endpoint.
type HTTPSearchIndexer struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPSearchIndexer constructs an indexer against the configured engine.
func NewHTTPSearchIndexer(baseURL string, logger *zap.Logger) *HTTPSearchIndexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPSearchIndexer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
	}
}

// ReindexMedicine asks the engine to refresh one catalog document.
func (i *HTTPSearchIndexer) ReindexMedicine(ctx context.Context, medicineID string) error {
	body, err := json.Marshal(map[string]string{"medicine_id": medicineID})
	if err != nil {
		return fmt.Errorf("worker: marshal reindex request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.baseURL+"/reindex", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("worker: build reindex request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("worker: reindex request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("worker: reindex returned %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier is the development Notifier: it writes the notification to the
// structured log instead of a messaging provider.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the message against the user.
func (n *LogNotifier) Notify(_ context.Context, userID, message string) error {
	n.logger.Info("notification",
		zap.String("user_id", userID),
		zap.String("message", message),
	)
	return nil
}
