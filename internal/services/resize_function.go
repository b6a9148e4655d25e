package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/cockroachdb/errors"

	"github.com/Lllllllleong/pageresizer/internal/discovery"
	"github.com/Lllllllleong/pageresizer/internal/docstore"
	"github.com/Lllllllleong/pageresizer/internal/gcp"
	"github.com/Lllllllleong/pageresizer/internal/geometry"
	"github.com/Lllllllleong/pageresizer/internal/models"
)

type ResizeFunctionConfig struct {
	ProjectID          string
	OutputBucket       string
	CollectionName     string
	WorkflowID         string // Empty disables the workflow hand-off.
	WorkflowLocation   string
	TargetFormat       geometry.Format
	Target             geometry.Dimensions
	DocumentTypeSuffix string
	DocumentTimeout    time.Duration
}

// ResizeFunction resizes documents uploaded to GCS and records each one in
// Firestore so repeated events for the same content are skipped.
type ResizeFunction struct {
	clients     *gcp.Clients
	transformer *Transformer
	config      ResizeFunctionConfig
}

// GCSEvent is the storage object payload of a CloudEvent.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// EventFromRequest validates an HTTP resize request for a single object.
func EventFromRequest(req models.ResizeRequest) (GCSEvent, error) {
	if req.Bucket == "" || req.Object == "" {
		return GCSEvent{}, errors.New("bucket and object are required")
	}
	if req.Prefix != "" {
		return GCSEvent{}, errors.New("object and prefix are mutually exclusive")
	}
	return GCSEvent{Bucket: req.Bucket, Name: req.Object}, nil
}

// LoadResizeFunctionConfig reads the function configuration from the
// environment.
func LoadResizeFunctionConfig() (ResizeFunctionConfig, error) {
	cfg := ResizeFunctionConfig{
		ProjectID:          gcp.GetEnv("PROJECT_ID", ""),
		OutputBucket:       gcp.GetEnv("OUTPUT_BUCKET", ""),
		CollectionName:     gcp.GetEnv("FIRESTORE_COLLECTION", "resized-documents"),
		WorkflowID:         gcp.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation:   gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		DocumentTypeSuffix: gcp.GetEnv("DOCUMENT_TYPE_SUFFIX", "pdf"),
	}
	if cfg.ProjectID == "" {
		return cfg, errors.New("PROJECT_ID environment variable must be set")
	}
	if cfg.OutputBucket == "" {
		return cfg, errors.New("OUTPUT_BUCKET environment variable must be set")
	}

	format, err := geometry.ParseFormat(gcp.GetEnv("TARGET_FORMAT", string(geometry.FormatA4)))
	if err != nil {
		return cfg, err
	}
	var custom geometry.SizeMM
	if custom.Width, err = gcp.GetEnvFloat("CUSTOM_WIDTH_MM", 0); err != nil {
		return cfg, err
	}
	if custom.Height, err = gcp.GetEnvFloat("CUSTOM_HEIGHT_MM", 0); err != nil {
		return cfg, err
	}
	target, err := geometry.Catalog{Custom: custom}.TargetDimensions(format)
	if err != nil {
		return cfg, err
	}
	cfg.TargetFormat = format
	cfg.Target = target

	if cfg.DocumentTimeout, err = gcp.GetEnvDuration("DOCUMENT_TIMEOUT", 2*time.Minute); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func NewResizeFunction(ctx context.Context) (*ResizeFunction, error) {
	config, err := LoadResizeFunctionConfig()
	if err != nil {
		return nil, err
	}
	clients, err := gcp.NewClients(ctx, config.ProjectID, config.WorkflowID != "")
	if err != nil {
		return nil, err
	}

	f := &ResizeFunction{
		clients:     clients,
		transformer: NewTransformer(docstore.NewPDFCPU(docstore.WithOptimize()), config.Target),
		config:      config,
	}
	slog.Info("Resize function initialized.", "targetFormat", config.TargetFormat, "target", config.Target.String(), "workflowId", config.WorkflowID)
	return f, nil
}

// Process resizes one uploaded object and writes it to the output bucket
// under a name derived from the target format and the source content, so a
// re-uploaded object or another target format never collides with an
// earlier output.
func (f *ResizeFunction) Process(ctx context.Context, e GCSEvent) (*models.ResizeResponse, error) {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if !discovery.DocumentPredicate(path.Base(e.Name), f.config.DocumentTypeSuffix) {
		logCtx.Info("Object is not a document. Ignoring.")
		return &models.ResizeResponse{Status: models.ResponseIgnored}, nil
	}
	logCtx.Info("Processing new GCS object.")

	tempDir, err := os.MkdirTemp("", "page-resizer-*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temp dir")
	}
	defer os.RemoveAll(tempDir)

	sourcePath := filepath.Join(tempDir, "source.pdf")
	if err := gcp.DownloadObject(ctx, f.clients.Storage, e.Bucket, e.Name, sourcePath); err != nil {
		logCtx.Error("Failed to download source document", "error", err)
		return nil, err
	}

	fileHash, err := calculateFileHash(sourcePath)
	if err != nil {
		logCtx.Error("Failed to calculate file hash", "error", err)
		return nil, errors.Wrap(err, "failed to calculate file hash")
	}
	logCtx = logCtx.With("fileHash", fileHash)

	isDuplicate, docID, err := f.isDuplicate(ctx, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return nil, err
	}
	if isDuplicate {
		logCtx.Info("Duplicate file detected. Skipping.", "existingDocId", docID)
		return &models.ResizeResponse{Status: models.ResponseDuplicate, DocumentID: docID}, nil
	}

	docRef, err := f.createInitialDocument(ctx, fileHash, gcsURI(e.Bucket, e.Name))
	if err != nil {
		logCtx.Error("Failed to create initial Firestore document", "error", err)
		return nil, err
	}
	logCtx = logCtx.With("documentId", docRef.ID)
	logCtx.Info("Created document record in Firestore.")

	resizedPath := filepath.Join(tempDir, "resized.pdf")
	res, err := f.resize(ctx, logCtx, docRef, e.Name, sourcePath, resizedPath)
	if err != nil {
		return nil, err
	}

	objectName := outputObjectName(e.Name, f.config.TargetFormat, f.config.Target, fileHash)
	outputURI := gcsURI(f.config.OutputBucket, objectName)
	logCtx = logCtx.With("outputUri", outputURI)
	bucket := f.clients.Storage.Bucket(f.config.OutputBucket)
	metadata := outputMetadata(fileHash, f.config.Target)
	created, err := gcp.UploadFileAtomically(ctx, bucket, resizedPath, objectName, metadata)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, docRef, "failed to upload resized document", err)
	}
	if !created {
		existing, err := gcp.ObjectMetadata(ctx, bucket, objectName)
		if err != nil {
			return nil, f.handleError(ctx, logCtx, docRef, "failed to inspect existing output object", err)
		}
		if !outputMatches(existing, metadata) {
			return nil, f.handleError(ctx, logCtx, docRef, "output object conflict",
				errors.Newf("%s already exists with different content", outputURI))
		}
		logCtx.Info("Output object already present from an earlier attempt.")
	}

	updates := []firestore.Update{
		{Path: "status", Value: models.StatusResized},
		{Path: "pageCount", Value: res.Pages},
		{Path: "outputUri", Value: outputURI},
	}
	if _, err := docRef.Update(ctx, updates); err != nil {
		return nil, f.handleError(ctx, logCtx, docRef, "failed to update status to RESIZED", err)
	}

	if f.config.WorkflowID != "" {
		if err := f.triggerWorkflow(ctx, logCtx, docRef, outputURI, res.Pages); err != nil {
			return nil, err
		}
	}

	logCtx.Info("Document resized and uploaded.", "pages", res.Pages, "scaled", res.Scaled)
	return &models.ResizeResponse{
		Status:       models.ResponseResized,
		DocumentID:   docRef.ID,
		OutputGCSUri: outputURI,
		PageCount:    res.Pages,
		ScaledPages:  res.Scaled,
	}, nil
}

// ProcessPrefix resizes every document under prefix one after the other, in
// object name order. A failing object does not stop the batch.
func (f *ResizeFunction) ProcessPrefix(ctx context.Context, bucket, prefix string) (*models.ResizeBatchResponse, error) {
	logCtx := slog.With("gcsBucket", bucket, "prefix", prefix)
	names, err := gcp.ListObjects(ctx, f.clients.Storage, bucket, prefix, func(name string) bool {
		return discovery.DocumentPredicate(path.Base(name), f.config.DocumentTypeSuffix)
	})
	if err != nil {
		logCtx.Error("Failed to list source objects", "error", err)
		return nil, err
	}
	if len(names) == 0 {
		logCtx.Warn("No documents found under prefix.")
	}
	logCtx.Info("Found documents to resize.", "count", len(names))

	batch := &models.ResizeBatchResponse{Results: []models.ResizeResponse{}}
	for _, name := range names {
		if ctx.Err() != nil {
			batch.Failed = append(batch.Failed, name)
			continue
		}
		res, err := f.Process(ctx, GCSEvent{Bucket: bucket, Name: name})
		if err != nil {
			batch.Failed = append(batch.Failed, name)
			continue
		}
		batch.Results = append(batch.Results, *res)
	}
	batch.Status = batchStatus(len(batch.Failed))
	logCtx.Info("Batch complete.", "resized", len(batch.Results), "failed", len(batch.Failed))
	return batch, nil
}

func batchStatus(failed int) string {
	if failed > 0 {
		return models.ResponsePartial
	}
	return models.ResponseResized
}

func (f *ResizeFunction) resize(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, object, source, dest string) (models.DocumentResult, error) {
	tctx := ctx
	if f.config.DocumentTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, f.config.DocumentTimeout)
		defer cancel()
	}
	ref, err := models.NewDocumentRef(path.Base(object), source, time.Time{}, time.Time{})
	if err != nil {
		return models.DocumentResult{}, f.handleError(ctx, logCtx, docRef, "invalid object name", err)
	}
	res := f.transformer.Transform(tctx, ref, dest)
	if res.Err != nil {
		return res, f.handleError(ctx, logCtx, docRef, "failed to resize document", res.Err)
	}
	return res, nil
}

// isDuplicate looks for an earlier record of the same content and target
// format. FAILED records do not count, so a retried event is processed again.
func (f *ResizeFunction) isDuplicate(ctx context.Context, fileHash string) (bool, string, error) {
	docs, err := f.clients.Firestore.Collection(f.config.CollectionName).
		Where("fileHash", "==", fileHash).
		Where("targetFormat", "==", string(f.config.TargetFormat)).
		Documents(ctx).GetAll()
	if err != nil {
		return false, "", errors.Wrap(err, "failed to query for duplicates")
	}
	for _, doc := range docs {
		var record models.DocumentRecord
		if err := doc.DataTo(&record); err != nil {
			return false, "", errors.Wrapf(err, "failed to decode record %s", doc.Ref.ID)
		}
		if countsAsDuplicate(record.Status) {
			return true, doc.Ref.ID, nil
		}
	}
	return false, "", nil
}

func countsAsDuplicate(status string) bool {
	return status != models.StatusFailed
}

func (f *ResizeFunction) createInitialDocument(ctx context.Context, fileHash, sourceURI string) (*firestore.DocumentRef, error) {
	record := models.DocumentRecord{
		FileHash:     fileHash,
		SourceURI:    sourceURI,
		Status:       models.StatusResizing,
		TargetFormat: string(f.config.TargetFormat),
		CreatedAt:    time.Now(),
	}
	docRef, _, err := f.clients.Firestore.Collection(f.config.CollectionName).Add(ctx, record)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create document record")
	}
	return docRef, nil
}

func (f *ResizeFunction) triggerWorkflow(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, outputURI string, pageCount int) error {
	logCtx.Info("Triggering workflow.")
	payloadBytes, err := workflowArgument(docRef.ID, outputURI, pageCount)
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to marshal workflow payload", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: workflowParent(f.config),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	exec, err := f.clients.Executions.CreateExecution(ctx, req)
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to trigger workflow execution", err)
	}
	if _, err := docRef.Update(ctx, []firestore.Update{{Path: "workflowExecutionId", Value: exec.GetName()}}); err != nil {
		logCtx.Warn("Failed to record workflow execution.", "execution", exec.GetName(), "error", err)
	}
	return nil
}

func (f *ResizeFunction) handleError(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	wrapped := errors.Wrap(originalErr, message)
	if err := f.updateStatus(ctx, docRef, models.StatusFailed, wrapped.Error()); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return wrapped
}

func (f *ResizeFunction) updateStatus(ctx context.Context, docRef *firestore.DocumentRef, status, errDetails string) error {
	updates := []firestore.Update{
		{Path: "status", Value: status},
	}
	if errDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: errDetails})
	}
	_, err := docRef.Update(ctx, updates)
	return err
}

func workflowParent(c ResizeFunctionConfig) string {
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", c.ProjectID, c.WorkflowLocation, c.WorkflowID)
}

func workflowArgument(documentID, outputURI string, pageCount int) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"documentId":   documentID,
		"outputGcsUri": outputURI,
		"pageCount":    pageCount,
	})
}

// outputObjectName places the resized copy of object under the target format
// and a short content hash: "a4/2024/scan-ba7816bf8f01.pdf".
func outputObjectName(object string, format geometry.Format, target geometry.Dimensions, fileHash string) string {
	segment := strings.ToLower(string(format))
	if format == geometry.FormatCustom {
		segment = fmt.Sprintf("custom-%gx%g", target.Width, target.Height)
	}
	short := fileHash
	if len(short) > 12 {
		short = short[:12]
	}
	dir, base := path.Split(object)
	ext := path.Ext(base)
	return path.Join(segment, dir, strings.TrimSuffix(base, ext)+"-"+short+ext)
}

func outputMetadata(fileHash string, target geometry.Dimensions) map[string]string {
	return map[string]string{
		"sourceHash": fileHash,
		"target":     target.String(),
	}
}

// outputMatches reports whether an existing object carries every entry of want.
func outputMatches(existing, want map[string]string) bool {
	for k, v := range want {
		if existing[k] != v {
			return false
		}
	}
	return true
}

func gcsURI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
