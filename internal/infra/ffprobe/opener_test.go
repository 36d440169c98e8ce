package ffprobe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeRun(stdout string, err error) runFunc {
	return func(context.Context, string, ...string) ([]byte, []byte, error) {
		return []byte(stdout), []byte("warning"), err
	}
}

func TestProbe(t *testing.T) {
	exitErr := errors.New("exit status 1")

	tests := []struct {
		name    string
		stdout  string
		runErr  error
		want    Info
		wantErr error
	}{
		{
			name:   "aac in mp4",
			stdout: `{"streams":[{"codec_type":"audio","codec_name":"aac","duration":"1800.5"}],"format":{"format_name":"mov,mp4,m4a,3gp,3g2,mj2","duration":"1800.6"}}`,
			want:   Info{Codec: "aac", Format: "mov", Duration: 1800.5},
		},
		{
			name:   "duration from format",
			stdout: `{"streams":[{"codec_type":"audio","codec_name":"opus"}],"format":{"format_name":"ogg","duration":"60"}}`,
			want:   Info{Codec: "opus", Format: "ogg", Duration: 60},
		},
		{
			name:   "usable output despite exit error",
			stdout: `{"streams":[{"codec_type":"audio","codec_name":"mp3"}],"format":{"format_name":"mp3"}}`,
			runErr: exitErr,
			want:   Info{Codec: "mp3", Format: "mp3"},
		},
		{
			name:    "video only",
			stdout:  `{"streams":[{"codec_type":"video","codec_name":"h264"}],"format":{"format_name":"mp4"}}`,
			wantErr: ErrNoAudio,
		},
		{
			name:    "exit error without output",
			runErr:  exitErr,
			wantErr: exitErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Opener{run: fakeRun(tt.stdout, tt.runErr)}
			got, err := o.Probe(context.Background(), "https://cdn.example/a")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := &Opener{run: fakeRun("", errors.New("killed"))}

	assert.ErrorIs(t, o.Open(ctx, "https://cdn.example/a", "audio/mp4"), context.Canceled)
}
