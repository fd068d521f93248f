package codec

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gocloud.dev/blob"

	rhttp "github.com/ligustah/volsplit/internal/http"
	"github.com/ligustah/volsplit/pkg/volume"
)

// Format names accepted in volume.CodecParams.Format.
const (
	FormatRaw  = "raw"
	FormatZstd = "zstd"
	FormatGzip = "gzip"
	FormatHTTP = "http"
)

// Formats lists every supported format.
var Formats = []string{FormatRaw, FormatZstd, FormatGzip, FormatHTTP}

// Extension returns the conventional file extension for a format.
func Extension(format string) string {
	switch format {
	case FormatZstd:
		return "zst"
	case FormatGzip:
		return "gz"
	default:
		return "raw"
	}
}

var errNoBucket = errors.New("codec: no bucket configured")

// Factory opens shard sources. It implements volume.Factory.
type Factory struct {
	bucket *blob.Bucket
	http   *rhttp.Client
	log    *zap.Logger
}

// Option configures a Factory.
type Option func(*Factory)

// WithHTTPClient sets the client used for the http format.
func WithHTTPClient(c *rhttp.Client) Option {
	return func(f *Factory) {
		f.http = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Factory) {
		f.log = l
	}
}

// NewFactory returns a factory that resolves shard filenames as keys in
// bucket. bucket may be nil if only the http format is used.
func NewFactory(bucket *blob.Bucket, opts ...Option) *Factory {
	f := &Factory{bucket: bucket, log: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	if f.http == nil {
		o := rhttp.DefaultOptions()
		o.Logger = f.log
		f.http = rhttp.NewClient(o)
	}
	return f
}

// Format normalizes the format of d. An empty format means raw.
func Format(d volume.Descriptor) string {
	f := strings.ToLower(strings.TrimSpace(d.Codec.Format))
	if f == "" {
		return FormatRaw
	}
	return f
}

// OpenRead implements volume.Factory.
func (f *Factory) OpenRead(ctx context.Context, d volume.Descriptor) (volume.Source, error) {
	l, err := newLayout(d)
	if err != nil {
		return nil, err
	}

	format := Format(d)
	f.log.Debug("opening shard for reading",
		zap.Int("shard", d.Index),
		zap.String("file", d.Filename),
		zap.String("format", format))

	switch format {
	case FormatRaw:
		if f.bucket == nil {
			return nil, errNoBucket
		}
		return openRawReader(ctx, f.bucket, d.Filename, l)
	case FormatZstd, FormatGzip:
		if f.bucket == nil {
			return nil, errNoBucket
		}
		if ok, err := f.bucket.Exists(ctx, d.Filename); err != nil {
			return nil, fmt.Errorf("stat %s: %w", d.Filename, err)
		} else if !ok {
			return nil, fmt.Errorf("open %s: object does not exist", d.Filename)
		}
		decode := zstdDecoder
		if format == FormatGzip {
			decode = gzipDecoder
		}
		return &compressedReader{layout: l, bucket: f.bucket, key: d.Filename, decode: decode}, nil
	case FormatHTTP:
		return openHTTPReader(ctx, f.http, d.Filename, l)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, d.Codec.Format)
	}
}

// OpenWrite implements volume.Factory.
func (f *Factory) OpenWrite(ctx context.Context, d volume.Descriptor) (volume.Source, error) {
	l, err := newLayout(d)
	if err != nil {
		return nil, err
	}

	var encode encoderFunc
	switch format := Format(d); format {
	case FormatRaw:
	case FormatZstd:
		encode = zstdEncoder(d.Codec.Compression)
	case FormatGzip:
		encode = gzipEncoder(d.Codec.Compression)
	case FormatHTTP:
		return nil, fmt.Errorf("%w: %s", ErrReadOnly, format)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, d.Codec.Format)
	}
	if f.bucket == nil {
		return nil, errNoBucket
	}

	f.log.Debug("opening shard for writing",
		zap.Int("shard", d.Index),
		zap.String("file", d.Filename))
	return newStreamWriter(ctx, f.bucket, d.Filename, l, encode)
}

// ExpectedSize is the stored size of d's object when the format fixes it.
func ExpectedSize(d volume.Descriptor) (int64, bool) {
	if Format(d) != FormatRaw {
		return 0, false
	}
	l, err := newLayout(d)
	if err != nil {
		return 0, false
	}
	return l.size(), true
}
