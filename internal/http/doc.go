// Package http reads shard files served over HTTP with range requests.
//
// The http codec uses it to fetch one voxel line per request, so a shard
// never has to be downloaded in full.
//
//   - HEAD requests to learn object size and range support
//   - Range requests returning exactly the bytes asked for
//   - Retry with exponential backoff and jitter on transport and 5xx errors
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//
//	info, err := client.Stat(ctx, url)
//	// info.Size, info.ETag, info.AcceptsRanges
//
//	line, err := client.ReadRange(ctx, url, offset, length)
package http
