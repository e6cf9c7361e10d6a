package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxStickerSeconds = 9
	maxAudioSeconds   = 600
)

// Converter shells out to ffmpeg for sticker and audio extraction. Inputs and
// outputs live as uuid-named temp files under workDir and are removed after
// each conversion.
type Converter struct {
	ffmpegPath string
	workDir    string
	logger     *zap.Logger
}

func NewConverter(ffmpegPath, workDir string, logger *zap.Logger) (*Converter, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create media work dir: %w", err)
	}
	return &Converter{ffmpegPath: ffmpegPath, workDir: workDir, logger: logger}, nil
}

// Sticker converts an image or a short video clip into a 512x512 webp
// sticker. Video inputs longer than the sticker limit are rejected by the
// duration cap passed to ffmpeg.
func (c *Converter) Sticker(ctx context.Context, input []byte, video bool) ([]byte, error) {
	in := filepath.Join(c.workDir, uuid.NewString())
	out := in + ".webp"
	defer c.cleanup(in, out)

	if err := os.WriteFile(in, input, 0o600); err != nil {
		return nil, fmt.Errorf("write media input: %w", err)
	}

	args := []string{"-y", "-i", in}
	if video {
		args = append(args, "-t", fmt.Sprintf("%d", maxStickerSeconds), "-vcodec", "libwebp", "-fs", "0.99M",
			"-filter:v", "fps=fps=15",
			"-vf", stickerScale, "-loop", "0", "-preset", "default", "-an", "-vsync", "0")
	} else {
		args = append(args, "-vcodec", "libwebp", "-vf", stickerScale)
	}
	args = append(args, out)

	if err := c.run(ctx, args); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read sticker output: %w", err)
	}
	return data, nil
}

// scale to fit 512x512 and pad the remainder with transparency
const stickerScale = "scale='min(512,iw)':'min(512,ih)':force_original_aspect_ratio=decrease,format=rgba,pad=512:512:'(ow-iw)/2':'(oh-ih)/2':'#00000000',setsar=1"

// ExtractAudio pulls an mp3 track out of a video. Inputs longer than ten
// minutes are cut at the limit.
func (c *Converter) ExtractAudio(ctx context.Context, input []byte) ([]byte, error) {
	in := filepath.Join(c.workDir, uuid.NewString())
	out := in + ".mp3"
	defer c.cleanup(in, out)

	if err := os.WriteFile(in, input, 0o600); err != nil {
		return nil, fmt.Errorf("write media input: %w", err)
	}

	args := []string{"-y", "-i", in, "-t", fmt.Sprintf("%d", maxAudioSeconds), "-vn", "-acodec", "libmp3lame", "-q:a", "2", out}
	if err := c.run(ctx, args); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read audio output: %w", err)
	}
	return data, nil
}

func (c *Converter) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		c.logger.Warn("ffmpeg failed", zap.Error(err), zap.ByteString("output", tail(output, 512)))
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

func (c *Converter) cleanup(paths ...string) {
	for _, path := range paths {
		_ = os.Remove(path)
	}
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}
