package models

import "time"

// PairKeySeparator joins the two ids of a canonical pair key
const PairKeySeparator = "-"

// ImageRecord identifies an image supplied by the caller
type ImageRecord struct {
	ID       string `json:"id"`
	FilePath string `json:"file_path"`
}

// Method describes which signal made two images match
type Method string

const (
	MethodExact      Method = "exact"
	MethodPerceptual Method = "perceptual"
	MethodColor      Method = "color"
	MethodRotated    Method = "rotated"
)

// DuplicatePair is an unordered pair of images judged to be duplicates
type DuplicatePair struct {
	IDA        string  `json:"id_a"`
	IDB        string  `json:"id_b"`
	Similarity float64 `json:"similarity"` // 0-100
	Method     Method  `json:"method"`
}

// Key returns the canonical, order-independent key of the pair
func (p DuplicatePair) Key() string {
	return PairKey(p.IDA, p.IDB)
}

// PairKey builds the canonical key for an unordered pair of ids.
// The ids are sorted lexicographically so (a, b) and (b, a) share a key.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + PairKeySeparator + b
}

// DuplicateGroup is a connected cluster of images linked by duplicate pairs
type DuplicateGroup struct {
	ID    int             `json:"id"`
	IDs   []string        `json:"ids"`
	Pairs []DuplicatePair `json:"pairs"`
}

// ExcludedImage is a record that could not be fingerprinted
type ExcludedImage struct {
	Record ImageRecord `json:"record"`
	Reason string      `json:"reason"`
}

// ScanResult holds the outcome of one duplicate-detection run
type ScanResult struct {
	TotalImages int             `json:"total_images"`
	Pairs       []DuplicatePair `json:"pairs"`
	Excluded    []ExcludedImage `json:"excluded,omitempty"`
}

// ScanRecord is a row of scan history
type ScanRecord struct {
	ID          int64     `json:"id"`
	Folder      string    `json:"folder"`
	ScannedAt   time.Time `json:"scanned_at"`
	TotalImages int       `json:"total_images"`
	Excluded    int       `json:"excluded"`
	TotalPairs  int       `json:"total_pairs"`
	Variant     string    `json:"variant"`
	Threshold   float64   `json:"threshold"`
}

// Stage names a phase of a duplicate-detection run
type Stage string

const (
	StageFingerprint Stage = "fingerprint"
	StageCompare     Stage = "compare"
)

// Progress reports how far a stage has advanced
type Progress struct {
	Stage Stage `json:"stage"`
	Done  int   `json:"done"`
	Total int   `json:"total"`
}

// EventType identifies the payload of an Event
type EventType string

const (
	EventProgress EventType = "progress"
	EventPair     EventType = "pair"
	EventExcluded EventType = "excluded"
	EventError    EventType = "error"
)

// Event is one item of a streamed duplicate-detection run
type Event struct {
	Type     EventType
	Progress Progress
	Pair     *DuplicatePair
	Excluded *ExcludedImage
	Err      error
}
