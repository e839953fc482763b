package fetcher

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// DecodeJSONArray incrementally decodes a top-level JSON array, emitting
// one element at a time. Open Charge Map serves its poi dump as a single
// array too large to hold decoded in memory, so elements are handed to
// the consumer as soon as the decoder produces them. Both channels close
// when the input is exhausted or an error has been sent.
func DecodeJSONArray[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	items := make(chan T, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(items)
		defer close(errs)

		dec := json.NewDecoder(r)

		tok, err := dec.Token()
		if err == io.EOF {
			// Empty input decodes to an empty stream.
			return
		}
		if err != nil {
			errs <- eris.Wrap(err, "json: read opening token")
			return
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			errs <- eris.Errorf("json: payload is not an array (starts with %v)", tok)
			return
		}

		for dec.More() {
			var item T
			if err := dec.Decode(&item); err != nil {
				errs <- eris.Wrap(err, "json: decode array element")
				return
			}
			select {
			case items <- item:
			case <-ctx.Done():
				errs <- eris.Wrap(ctx.Err(), "json: array decode cancelled")
				return
			}
		}

		if _, err := dec.Token(); err != nil && err != io.EOF {
			errs <- eris.Wrap(err, "json: read closing token")
		}
	}()

	return items, errs
}

// DecodeJSONObject decodes a single JSON object. Overpass wraps its
// elements in one response object, which fits in memory comfortably.
func DecodeJSONObject[T any](r io.Reader) (*T, error) {
	var obj T
	if err := json.NewDecoder(r).Decode(&obj); err != nil {
		return nil, eris.Wrap(err, "json: decode object")
	}
	return &obj, nil
}
