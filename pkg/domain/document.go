package domain

import "time"

// Document is the metadata of an uploaded file. Content lives in the blob
// store under BlobKey, which is derived from the content identifier so that
// identical uploads share one blob.
type Document struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	UDI           string    `json:"udi,omitempty"`
	FailureModeID *string   `json:"failure_mode_id,omitempty"`
	CID           string    `json:"cid"`
	BlobKey       string    `json:"blob_key"`
	ContentType   string    `json:"content_type,omitempty"`
	SizeBytes     int64     `json:"size_bytes"`
	UploadedBy    string    `json:"uploaded_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	cp := d
	if d.FailureModeID != nil {
		v := *d.FailureModeID
		cp.FailureModeID = &v
	}
	return cp
}
