package usecase

import (
	"errors"
	"fmt"
	"io"

	"daybook/internal/domain"
	"daybook/internal/ports"
)

// pumpAudio copies PCM chunks from the capture session into the transcribe
// socket until either side ends. stopped suppresses error reporting for the
// read failures a local stop provokes when it tears the capture down.
func pumpAudio(
	audio ports.AudioSession,
	stream ports.StreamSession,
	chunkSize int,
	events ports.EventSink,
	stopped func() bool,
	done chan struct{},
) {
	defer close(done)

	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				if !stopped() {
					events.SessionError(domain.ErrorCodeAudioStream, fmt.Sprintf("failed to stream audio: %v", sendErr))
				}
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !stopped() {
				events.SessionError(domain.ErrorCodeAudioStream, fmt.Sprintf("audio capture error: %v", err))
			}
			return
		}
	}
}
