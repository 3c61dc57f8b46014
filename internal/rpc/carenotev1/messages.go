package carenotev1

// Document is a record as the server stores it. Times are unix milliseconds.
// Body is carried as base64 so the exact bytes survive the round trip.
type Document struct {
	RemoteID        string `json:"remote_id"`
	Kind            string `json:"kind"`
	SyncKey         string `json:"sync_key"`
	DeviceID        string `json:"device_id"`
	UpdatedAtMillis int64  `json:"updated_at_ms"`
	DeletedAtMillis int64  `json:"deleted_at_ms,omitempty"`
	Body            []byte `json:"body,omitempty"`
	Seq             int64  `json:"seq,omitempty"`
}

type GetRequest struct {
	RemoteID string `json:"remote_id"`
}

type GetResponse struct {
	Document *Document `json:"document"`
}

type PutRequest struct {
	Document *Document `json:"document"`
}

// PutResponse reports the document's change sequence and whether the put
// changed the stored state.
type PutResponse struct {
	Seq     int64 `json:"seq"`
	Applied bool  `json:"applied"`
}

type ChangesRequest struct {
	Since int64 `json:"since"`
	Limit int32 `json:"limit"`
}

type ChangesResponse struct {
	Documents []*Document `json:"documents"`
	HasMore   bool        `json:"has_more"`
}

type VerifyPurchaseRequest struct {
	PurchaseToken  string `json:"purchase_token"`
	ProductID      string `json:"product_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

type VerifyPurchaseResponse struct {
	ProductID        string `json:"product_id"`
	IsActive         bool   `json:"is_active"`
	ExpiryTimeMillis int64  `json:"expiry_time_millis"`
	AutoRenewing     bool   `json:"auto_renewing"`
}
