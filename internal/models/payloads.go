package models

// These structs define the JSON payloads for the HTTP entry point of the
// resize function.

// ResizeRequest asks the function to resize one object already in GCS, or
// every document under Prefix when Prefix is set.
type ResizeRequest struct {
	Bucket string `json:"bucket"`
	Object string `json:"object,omitempty"`
	Prefix string `json:"prefix,omitempty"`
}

// ResizeResponse is returned for both HTTP and event-triggered invocations.
type ResizeResponse struct {
	Status       string `json:"status"`
	DocumentID   string `json:"documentId,omitempty"`
	OutputGCSUri string `json:"outputGcsUri,omitempty"`
	PageCount    int    `json:"pageCount"`
	ScaledPages  int    `json:"scaledPages"`
}

// ResizeBatchResponse is returned for prefix requests. Failed lists the
// objects whose resize returned an error; details are in the logs and in
// their Firestore records.
type ResizeBatchResponse struct {
	Status  string           `json:"status"`
	Results []ResizeResponse `json:"results"`
	Failed  []string         `json:"failed,omitempty"`
}

// Response statuses.
const (
	ResponseResized   = "resized"
	ResponseDuplicate = "duplicate"
	ResponseIgnored   = "ignored"
	ResponsePartial   = "partial"
)
