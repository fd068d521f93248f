package codec

import (
	"context"
	"fmt"

	rhttp "github.com/ligustah/volsplit/internal/http"
	"github.com/ligustah/volsplit/pkg/volume"
)

// httpReader reads raw shards from an HTTP server with one range request per
// line.
type httpReader struct {
	layout
	client *rhttp.Client
	url    string
}

func openHTTPReader(ctx context.Context, client *rhttp.Client, url string, l layout) (*httpReader, error) {
	info, err := client.Stat(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", url, err)
	}
	if !info.AcceptsRanges {
		return nil, fmt.Errorf("%s: %w", url, rhttp.ErrRangeNotSupported)
	}
	// Servers may omit Content-Length on HEAD.
	if info.Size >= 0 && info.Size != l.size() {
		return nil, fmt.Errorf("%w: %s is %d bytes, expected %d", ErrSizeMismatch, url, info.Size, l.size())
	}
	return &httpReader{layout: l, client: client, url: url}, nil
}

func (r *httpReader) ReadLine(ctx context.Context, start volume.Coord, count int) ([]byte, error) {
	n, err := r.clampLine(start, count)
	if err != nil || n <= 0 {
		return nil, err
	}
	buf, err := r.client.ReadRange(ctx, r.url, r.offset(start), int64(n*r.bpv))
	if err != nil {
		return nil, err
	}
	r.order(buf)
	return buf, nil
}

func (r *httpReader) WriteLine(context.Context, volume.Coord, []byte) error {
	return ErrReadOnly
}

func (r *httpReader) BytesPerVoxel() int {
	return r.bpv
}

func (r *httpReader) Close() error {
	return nil
}
