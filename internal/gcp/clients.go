package gcp

import (
	"context"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"github.com/cockroachdb/errors"
)

// Clients bundles the GCP clients the resize function needs. Executions is nil
// when no workflow hand-off is configured.
type Clients struct {
	Storage    *storage.Client
	Firestore  *firestore.Client
	Executions *executions.Client
}

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, errors.New("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Firestore client")
	}
	return client, nil
}

// NewClients opens every client. On failure the ones already opened are closed.
func NewClients(ctx context.Context, projectID string, withWorkflows bool) (*Clients, error) {
	c := &Clients{}
	var err error
	if c.Firestore, err = NewFirestoreClient(ctx, projectID); err != nil {
		return nil, err
	}
	if c.Storage, err = storage.NewClient(ctx); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "failed to create Storage client")
	}
	if withWorkflows {
		if c.Executions, err = executions.NewClient(ctx); err != nil {
			c.Close()
			return nil, errors.Wrap(err, "failed to create Workflows Executions client")
		}
	}
	return c, nil
}

// Close releases every opened client.
func (c *Clients) Close() error {
	var errs []error
	if c.Executions != nil {
		errs = append(errs, c.Executions.Close())
	}
	if c.Storage != nil {
		errs = append(errs, c.Storage.Close())
	}
	if c.Firestore != nil {
		errs = append(errs, c.Firestore.Close())
	}
	var out error
	for _, e := range errs {
		out = errors.CombineErrors(out, e)
	}
	return out
}
