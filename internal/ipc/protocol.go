// Package ipc implements the length-prefixed framed request/response
// transport between the Verifier (client) and the Model Service (server)
// described in spec §4.2, plus the typed request/response payloads for the
// vision RPCs in spec §4.1.
package ipc

// RequestKind identifies which Model Service operation a Request invokes.
type RequestKind string

const (
	KindPing            RequestKind = "ping"
	KindGetEncodings    RequestKind = "get_encodings"
	KindDetectFaces     RequestKind = "detect_faces"
	KindGetLandmarks    RequestKind = "get_landmarks"
	KindGetFaceEncoding RequestKind = "get_face_encoding"
	KindInvalidate      RequestKind = "invalidate"
	KindStats           RequestKind = "stats"
)

// FramePayload carries a single raster buffer losslessly across the wire.
// Data is row-major, Channels bytes per pixel (1 for luma, 3 for color).
type FramePayload struct {
	Width    int    `cbor:"width"`
	Height   int    `cbor:"height"`
	Channels int    `cbor:"channels"`
	Data     []byte `cbor:"data"`
}

// Rect is an axis-aligned bounding rectangle in frame coordinates.
type Rect struct {
	X int `cbor:"x"`
	Y int `cbor:"y"`
	W int `cbor:"w"`
	H int `cbor:"h"`
}

// Point is a 2D landmark coordinate in frame coordinates.
type Point struct {
	X float64 `cbor:"x"`
	Y float64 `cbor:"y"`
}

// EnrollmentMeta is the human label and timestamp for one enrollment
// model entry (spec §3, "model entry").
type EnrollmentMeta struct {
	Label string `cbor:"label"`
	Time  int64  `cbor:"time"` // unix seconds
}

// EncodingsPayload is the get_encodings response body.
type EncodingsPayload struct {
	Vectors     [][]float64      `cbor:"vectors"`
	Meta        []EnrollmentMeta `cbor:"meta"`
	SourceMtime int64            `cbor:"source_mtime"` // unix nanoseconds
}

// StatsPayload is the cumulative counters returned by the stats RPC.
type StatsPayload struct {
	RequestsServed     uint64  `cbor:"requests_served"`
	CacheHits          uint64  `cbor:"cache_hits"`
	CacheMisses        uint64  `cbor:"cache_misses"`
	StartupDurationMs  int64   `cbor:"startup_duration_ms"`
	MeanResponseTimeMs float64 `cbor:"mean_response_time_ms"`
}

// Request is a single frame sent from the Verifier to the Model Service.
// Fields not relevant to Type are left zero-valued.
type Request struct {
	Type       RequestKind   `cbor:"type"`
	Username   string        `cbor:"username,omitempty"`
	LumaFrame  *FramePayload `cbor:"luma_frame,omitempty"`
	ColorFrame *FramePayload `cbor:"color_frame,omitempty"`
	BBox       *Rect         `cbor:"bbox,omitempty"`
}

// Response is a single frame sent back from the Model Service.
// Error, when non-empty, is a lowercase error kind such as "unknown",
// "encode_failed", "enrollment_corrupt" or "internal"; callers should
// check it before trusting any other field.
type Response struct {
	Error        string            `cbor:"error,omitempty"`
	Alive        bool              `cbor:"alive,omitempty"`
	ModelsLoaded bool              `cbor:"models_loaded,omitempty"`
	Encodings    *EncodingsPayload `cbor:"encodings,omitempty"`
	Faces        []Rect            `cbor:"faces,omitempty"`
	Landmarks    []Point           `cbor:"landmarks,omitempty"`
	Encoding     []float64         `cbor:"encoding,omitempty"`
	Stats        *StatsPayload     `cbor:"stats,omitempty"`
}
