package convert

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tcolgate/mp3"
)

var ErrEmptyAudio = errors.New("audio file is empty")

// MeasureMP3 decodes every frame header and returns the summed duration in
// seconds. At least one frame must decode.
func MeasureMP3(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open audio %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat audio %s: %w", path, err)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%s: %w", path, ErrEmptyAudio)
	}

	dec := mp3.NewDecoder(f)
	var frame mp3.Frame
	skipped := 0
	frames := 0
	var seconds float64
	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			if frames == 0 {
				return 0, fmt.Errorf("decode mp3 frame in %s: %w", path, err)
			}
			break
		}
		frames++
		seconds += frame.Duration().Seconds()
	}
	if frames == 0 {
		return 0, fmt.Errorf("no mp3 frames in %s", path)
	}
	return seconds, nil
}
