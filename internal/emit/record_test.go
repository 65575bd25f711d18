package emit

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordLine(t *testing.T) {
	at := time.Date(2024, 3, 1, 22, 15, 7, 0, time.Local)

	tests := []struct {
		name string
		rec  Record
		want string
	}{
		{
			name: "held record with notes",
			rec: Record{
				EmittedAt:  at,
				UnixSecond: 1709330107,
				BPM:        "15.20",
				Notes:      []string{"held=1", "snr=12.00", "init=1.00"},
			},
			want: "22:15:07,1709330107,15.20,held=1/snr=12.00/init=1.00",
		},
		{
			name: "empty bpm and no notes",
			rec:  Record{EmittedAt: at, UnixSecond: 1709330107},
			want: "22:15:07,1709330107,,",
		},
		{
			name: "single note",
			rec:  Record{EmittedAt: at, UnixSecond: 42, Notes: []string{"init=0.50"}},
			want: "22:15:07,42,,init=0.50",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.rec.Line())
		})
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "15.00", FormatValue(15))
	assert.Equal(t, "7.25", FormatValue(7.249999999))
	assert.Equal(t, "0.50", FormatValue(0.5))
}

func TestWriterTee(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	var primary bytes.Buffer
	w, err := NewTeeWriter(&primary, path)
	require.NoError(t, err)

	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.WriteRecord(Record{
		EmittedAt:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local),
		UnixSecond: 100,
		BPM:        "14.00",
	}))
	require.NoError(t, w.Close())

	wantLines := []string{Header, "10:00:00,100,14.00,"}
	assert.Equal(t, strings.Join(wantLines, "\n")+"\n", primary.String())

	fileData, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, primary.String(), string(fileData))
}

func TestWriterSecondaryAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	require.NoError(t, os.WriteFile(path, []byte("existing\n"), 0o644))

	var primary bytes.Buffer
	w, err := NewTeeWriter(&primary, path)
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.Close())

	fileData, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "existing\n"+Header+"\n", string(fileData))
}

func TestWriterCloseIdempotent(t *testing.T) {
	var primary bytes.Buffer
	w := NewWriter(&primary)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	tee, err := NewTeeWriter(&primary, filepath.Join(t.TempDir(), "out.csv"))
	require.NoError(t, err)
	require.NoError(t, tee.Close())
	require.NoError(t, tee.Close())
}
