// Package analysis runs long bulk jobs (signature backfills, regrouping) in batches
// with progress reporting and cooperative cancellation.
package analysis

import "time"

// Progress represents the progress of a batch run
type Progress struct {
	Processed  int     `json:"processed"`  // Number of items processed, failed ones included
	Total      int     `json:"total"`      // Total number of items to process
	Failed     int     `json:"failed"`     // Number of failed items
	Percent    float64 `json:"percent"`    // Progress percentage (0-100)
	ETASeconds int     `json:"etaSeconds"` // Estimated time to completion in seconds
	Message    string  `json:"message,omitempty"`
}

// ProgressFunc receives progress updates; Processed and Total are the completed/total pair
type ProgressFunc func(p Progress)

// Done reports whether every item has been handled
func (p Progress) Done() bool {
	return p.Processed >= p.Total
}

func newProgress(processed, total, failed int, elapsed time.Duration) Progress {
	p := Progress{Processed: processed, Total: total, Failed: failed}
	if total > 0 {
		p.Percent = float64(processed) / float64(total) * 100.0
	} else {
		p.Percent = 100
	}
	if processed > 0 && processed < total {
		p.ETASeconds = int(elapsed.Seconds() / float64(processed) * float64(total-processed))
	}
	return p
}
