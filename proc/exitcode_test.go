//go:build linux

package proc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type codedError struct{ code int }

func (e codedError) Error() string { return "coded error" }
func (e codedError) Report() int   { return e.code }

func TestReportResult(t *testing.T) {
	require.Equal(t, 0, ReportResult(nil))
	require.Equal(t, -1, ReportResult(errors.New("boom")))
	require.Equal(t, 17, ReportResult(codedError{code: 17}))
}
