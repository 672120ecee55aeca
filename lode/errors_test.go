package lode

import (
	"context"
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		errMsg   string
		wantKind error
	}{
		{"context deadline exceeded", "context deadline exceeded", ErrTimeout},
		{"timeout in message", "connection timeout after 30s", ErrTimeout},

		{"AccessDenied response", "AccessDenied: you do not have access", ErrAccessDenied},
		{"Forbidden response", "Forbidden", ErrAccessDenied},
		{"HTTP 403", "received status 403", ErrAccessDenied},

		{"permission denied", "permission denied for /data/export", ErrPermissionDenied},
		{"EACCES errno", "open /tmp/file: EACCES", ErrPermissionDenied},

		{"no space left on device", "write /data/export: no space left on device", ErrDiskFull},
		{"quota exceeded", "quota exceeded for user", ErrDiskFull},

		{"no such file", "no such file or directory", ErrNotFound},
		{"NoSuchKey S3", "NoSuchKey: The specified key does not exist", ErrNotFound},
		{"NoSuchBucket S3", "NoSuchBucket: bucket traces", ErrNotFound},

		{"HTTP 429", "received status 429", ErrThrottled},
		{"SlowDown S3", "SlowDown: please reduce request rate", ErrThrottled},

		{"NoCredentialProviders", "NoCredentialProviders: no valid credential providers", ErrAuth},
		{"ExpiredToken", "ExpiredToken: the security token has expired", ErrAuth},
		{"HTTP 401", "received status 401", ErrAuth},

		{"connection refused", "dial tcp 127.0.0.1:9000: connection refused", ErrNetwork},
		{"DNS resolution failure", "DNS lookup failed for bucket.s3.amazonaws.com", ErrNetwork},

		{"unrecognized error", "something completely unexpected happened", ErrUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(errors.New(tt.errMsg))
			if !errors.Is(got, tt.wantKind) {
				t.Errorf("classify(%q) = %v, want %v", tt.errMsg, got, tt.wantKind)
			}
		})
	}
}

func TestClassify_TimeoutInterface(t *testing.T) {
	if got := classify(context.DeadlineExceeded); !errors.Is(got, ErrTimeout) {
		t.Errorf("classify(DeadlineExceeded) = %v, want ErrTimeout", got)
	}
}

func TestStorageError_Chain(t *testing.T) {
	underlying := errors.New("open /x: permission denied")
	err := WrapWriteError(underlying, "/x")

	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("errors.Is(err, ErrPermissionDenied) = false")
	}
	if !errors.Is(err, underlying) {
		t.Errorf("underlying error lost from chain")
	}

	var se *StorageError
	if !errors.As(err, &se) || se.Op != "write" || se.Path != "/x" {
		t.Fatalf("StorageError = %+v", se)
	}
	if got := err.Error(); got != "write /x: permission denied: open /x: permission denied" {
		t.Errorf("Error() = %q", got)
	}

	// Rewrapping keeps the first classification.
	if again := WrapReadError(err, "/y"); again != err {
		t.Errorf("rewrap = %v, want original", again)
	}
	if WrapInitError(nil, "ds") != nil {
		t.Error("WrapInitError(nil) != nil")
	}
}
