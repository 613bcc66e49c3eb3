package upload

import (
	"context"
	"io"
	"iter"
	"math"
	"net/http"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/skretail/console/pkg/apiclient"
	"github.com/skretail/console/pkg/dataset"
)

// FatalBatchError stops an upload. Batches after Sequence are never sent.
type FatalBatchError struct {
	Sequence int
	Message  string
	Err      error
}

func (e *FatalBatchError) Error() string {
	return e.Message
}

func (e *FatalBatchError) Unwrap() error {
	return e.Err
}

// BatchOutcome is the backend's verdict on one batch.
type BatchOutcome struct {
	Sequence int
	Sent     int
	Valid    []*dataset.Record
	Errors   []*dataset.Record
	// Partial is set when the backend answered 400 with per-row results.
	Partial  bool
	Progress int
}

type chunkResponse struct {
	ValidData []json.RawMessage `json:"validData"`
	Errors    []json.RawMessage `json:"errors"`
}

type Pipeline struct {
	client    apiclient.Requester
	chunkSize int
}

func NewPipeline(client apiclient.Requester, chunkSize int) *Pipeline {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Pipeline{client: client, chunkSize: chunkSize}
}

// Upload parses r and sends it to endpoint one batch at a time. The next
// batch is neither read nor sent until the consumer has taken the previous
// outcome. The sequence stops after the first error. size is the file size in
// bytes and only feeds the progress estimate.
func (p *Pipeline) Upload(ctx context.Context, r io.Reader, size int64, endpoint string) iter.Seq2[*BatchOutcome, error] {
	return func(yield func(*BatchOutcome, error) bool) {
		batcher := NewBatcher(r, p.chunkSize)
		completed := 0
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, errors.WithStack(err))
				return
			}

			batch, err := batcher.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, &FatalBatchError{Sequence: completed + 1, Message: err.Error(), Err: err})
				return
			}

			out, err := p.send(ctx, endpoint, batch)
			if err != nil {
				yield(nil, err)
				return
			}
			completed++
			out.Progress = progressPercent(completed, p.chunkSize, size)
			if !yield(out, nil) {
				return
			}
		}
	}
}

// Run drives Upload to the end, merging every outcome into one Result.
// onBatch, when set, sees the result after each merge.
func (p *Pipeline) Run(ctx context.Context, r io.Reader, size int64, endpoint string, onBatch func(*Result)) (*Result, error) {
	log := logger.FromContext(ctx)
	res := NewResult()
	for out, err := range p.Upload(ctx, r, size, endpoint) {
		if err != nil {
			res.Finish(err)
			log.Err(err).Warn("upload aborted", logger.Data{"endpoint": endpoint, "batches_sent": res.BatchesSent})
			return res, err
		}
		res.Merge(out)
		log.Info("uploaded batch", logger.Data{
			"endpoint": endpoint,
			"sequence": out.Sequence,
			"valid":    len(out.Valid),
			"errors":   len(out.Errors),
			"progress": res.ProgressPercent,
		})
		if onBatch != nil {
			onBatch(res)
		}
	}
	res.Finish(nil)
	return res, nil
}

func (p *Pipeline) send(ctx context.Context, endpoint string, batch *Batch) (*BatchOutcome, error) {
	var raw []byte
	err := p.client.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   endpoint,
		Body:   map[string]interface{}{"data": batch.Rows},
	}, &raw)

	out := &BatchOutcome{Sequence: batch.Sequence, Sent: len(batch.Rows)}
	if err != nil {
		var apiErr *apiclient.Error
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
			return nil, fatal(batch.Sequence, err)
		}
		raw = apiErr.Body
		out.Partial = true
	}

	resp := chunkResponse{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fatal(batch.Sequence, errors.Wrap(err, "unreadable upload response"))
		}
	}
	if out.Valid, err = decodeRecords(resp.ValidData); err != nil {
		return nil, fatal(batch.Sequence, err)
	}
	if out.Errors, err = decodeRecords(resp.Errors); err != nil {
		return nil, fatal(batch.Sequence, err)
	}
	return out, nil
}

func fatal(seq int, err error) *FatalBatchError {
	msg := err.Error()
	if msg == "" {
		msg = "Upload failed"
	}
	return &FatalBatchError{Sequence: seq, Message: msg, Err: err}
}

// decodeRecords accepts objects as they are and wraps bare values (the
// backend sometimes reports errors as plain strings) into {"error": value}.
func decodeRecords(raws []json.RawMessage) ([]*dataset.Record, error) {
	records := make([]*dataset.Record, 0, len(raws))
	for _, raw := range raws {
		r := dataset.NewRecord()
		if err := r.UnmarshalJSON(raw); err == nil {
			records = append(records, r)
			continue
		}
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.WithStack(err)
		}
		r.Set(reasonKeys[0], v)
		records = append(records, r)
	}
	return records, nil
}

// progressPercent is a byte-size heuristic, so it is capped below 100 until
// the file is fully sent.
func progressPercent(completed, chunkSize int, size int64) int {
	if size <= 0 {
		return 99
	}
	p := int(math.Round(float64(completed*chunkSize) / float64(size) * 100))
	if p > 99 {
		p = 99
	}
	return p
}
