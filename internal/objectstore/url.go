package objectstore

import (
	"fmt"
	"net/url"
	"strings"
)

// Location is a bucket/key address decoded from an object storage URL.
type Location struct {
	Namespace string
	Bucket    string
	Key       string
}

// ObjectURL formats the display URL for key in bucket:
// https://objectstorage.<region>.<domain>/n/<namespace>/b/<bucket>/o/<key>
func ObjectURL(region, domain, namespace, bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return fmt.Sprintf("https://objectstorage.%s.%s/n/%s/b/%s/o/%s",
		region, domain, url.PathEscape(namespace), url.PathEscape(bucket), strings.Join(segments, "/"))
}

// ParseURL extracts the bucket and key from a URL shaped like ObjectURL's
// output. The bucket is path segment 3 and the key is everything from
// segment 5 on, counted after the leading slash.
func ParseURL(raw string) (Location, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	segments := strings.Split(strings.TrimPrefix(parsed.Path, "/"), "/")
	if len(segments) < 6 || segments[0] != "n" || segments[2] != "b" || segments[4] != "o" {
		return Location{}, fmt.Errorf("%w: %q", ErrMalformedURL, raw)
	}
	loc := Location{
		Namespace: segments[1],
		Bucket:    segments[3],
		Key:       strings.Join(segments[5:], "/"),
	}
	if strings.TrimSpace(loc.Bucket) == "" || strings.TrimSpace(loc.Key) == "" {
		return Location{}, fmt.Errorf("%w: %q", ErrMalformedURL, raw)
	}
	return loc, nil
}
