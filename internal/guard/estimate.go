package guard

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultCharsPerToken is the ratio used by the cheap estimator.
const DefaultCharsPerToken = 4

// TokenEstimator approximates how many model tokens a text costs.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharEstimator estimates tokens as characters divided by CharsPerToken,
// rounded up.
type CharEstimator struct {
	CharsPerToken int
}

func (e CharEstimator) Estimate(text string) int {
	per := e.CharsPerToken
	if per <= 0 {
		per = DefaultCharsPerToken
	}
	n := utf8.RuneCountInString(text)
	return (n + per - 1) / per
}

// TiktokenEstimator counts tokens with a BPE encoding. The encoding is
// loaded on first use; if it cannot be loaded the estimator falls back
// to Fallback for the life of the process.
type TiktokenEstimator struct {
	Encoding string
	Fallback TokenEstimator
	Logger   *slog.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTiktokenEstimator returns an estimator for encoding, e.g.
// "cl100k_base".
func NewTiktokenEstimator(encoding string, logger *slog.Logger) *TiktokenEstimator {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TiktokenEstimator{
		Encoding: encoding,
		Fallback: CharEstimator{CharsPerToken: DefaultCharsPerToken},
		Logger:   logger,
	}
}

func (e *TiktokenEstimator) Estimate(text string) int {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(e.Encoding)
		if err != nil {
			e.Logger.Warn("tiktoken encoding unavailable, estimating by characters",
				"encoding", e.Encoding, "error", err)
			return
		}
		e.enc = enc
	})
	if e.enc == nil {
		return e.Fallback.Estimate(text)
	}
	return len(e.enc.Encode(text, nil, nil))
}
