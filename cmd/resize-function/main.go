package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cockroachdb/errors"

	"github.com/Lllllllleong/pageresizer/internal/models"
	"github.com/Lllllllleong/pageresizer/internal/services"
)

var (
	resizeInstance *services.ResizeFunction
	once           sync.Once
	initErr        error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("ResizeOnUpload", resizeOnUpload)
	functions.HTTP("ResizeDocument", resizeDocument)
}

// main is required by the Go Functions Framework.
func main() {}

func instance() (*services.ResizeFunction, error) {
	once.Do(func() {
		resizeInstance, initErr = services.NewResizeFunction(context.Background())
	})
	return resizeInstance, initErr
}

// resizeOnUpload handles storage object-finalized events.
func resizeOnUpload(ctx context.Context, e cloudevents.Event) error {
	f, err := instance()
	if err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		return err
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return errors.Wrap(err, "json.Unmarshal")
	}

	// Errors are logged with context inside Process; returning one marks the
	// invocation as failed so the event is retried.
	_, err = f.Process(ctx, gcsEvent)
	return err
}

// resizeDocument resizes an object on demand.
func resizeDocument(w http.ResponseWriter, r *http.Request) {
	f, err := instance()
	if err != nil {
		slog.Error("Critical: resize function initialization failed", "error", err)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.ResizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}
	var res any
	if req.Prefix != "" && req.Object == "" {
		if req.Bucket == "" {
			http.Error(w, "Bad Request: bucket is required", http.StatusBadRequest)
			return
		}
		res, err = f.ProcessPrefix(r.Context(), req.Bucket, req.Prefix)
	} else {
		event, verr := services.EventFromRequest(req)
		if verr != nil {
			http.Error(w, "Bad Request: "+verr.Error(), http.StatusBadRequest)
			return
		}
		res, err = f.Process(r.Context(), event)
	}
	if err != nil {
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
