package s3client

import (
	"fmt"
	"path"
	"strings"
)

// ParseS3URI splits s3://bucket/prefix into its bucket and a cleaned prefix
// without leading or trailing slashes.
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(uri, "s3://") {
		return "", "", fmt.Errorf("URI must start with s3://")
	}

	rest := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(rest, "/", 2)

	bucket = parts[0]
	if bucket == "" {
		return "", "", fmt.Errorf("bucket name cannot be empty")
	}

	if len(parts) > 1 {
		prefix = strings.Trim(parts[1], "/")
		if prefix != "" {
			prefix = path.Clean(prefix)
		}
	}

	return bucket, prefix, nil
}

// IsS3URI reports whether location addresses object storage.
func IsS3URI(location string) bool {
	return strings.HasPrefix(location, "s3://")
}

// TrimKeyPrefix removes "prefix/" from key. Keys not under prefix are
// returned unchanged.
func TrimKeyPrefix(key, prefix string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, prefix+"/")
}

// JoinKey is the inverse of TrimKeyPrefix.
func JoinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
