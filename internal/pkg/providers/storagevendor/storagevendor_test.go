package storagevendor

import (
	"fmt"
	"testing"

	"github.com/airenas/voxsum/internal/pkg/provider"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errResponse(code string) error {
	return minio.ErrorResponse{Code: code, Message: fmt.Sprintf("test %s", code)}
}

func Test_classify(t *testing.T) {
	tests := []struct {
		code string
		kind provider.ErrorKind
	}{
		{code: "NoSuchKey", kind: provider.ErrInvalidFormat},
		{code: "NoSuchBucket", kind: provider.ErrInvalidFormat},
		{code: "AccessDenied", kind: provider.ErrUnavailable},
		{code: "InternalError", kind: provider.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := classify(errResponse(tt.code))
			var perr *provider.Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.kind, perr.Kind)
			assert.Equal(t, "s3", perr.Provider)
		})
	}
}
