package bot

import (
	"context"
	"errors"

	"github.com/ndmitry/grabit/internal/media"
)

const (
	statusQueued     = "⏳ Queued..."
	statusFetching   = "⬇️ Downloading..."
	statusProcessing = "⚙️ Processing..."
	statusCompress   = "🗜 Compressing, this can take a while..."
)

const (
	msgUnsupported = "I don't know how to download from this link."
	msgBadURL      = "That doesn't look like a valid link."
	msgFetchFailed = "Couldn't download this one, the source refused."
	msgTimeout     = "Took too long, gave up. Try again later."
	msgTooLarge    = "This video is too large to even attempt."
	msgStillTooBig = "Compressed it as hard as I could, still too big to send."
	msgTranscode   = "Something broke while converting the video."
	msgNoDiskSpace = "Server is out of disk space, try again later."
	msgInternal    = "Something went wrong, sorry."
)

// failText maps a pipeline error to the message shown to the user.
// Every failure kind gets its own text so users can tell a dead link
// from an oversized video.
func failText(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return msgTimeout
	}
	switch media.KindOf(err) {
	case media.FailUnsupportedSource:
		return msgUnsupported
	case media.FailFetch:
		return msgFetchFailed
	case media.FailTimeout:
		return msgTimeout
	case media.FailTooLarge:
		return msgTooLarge
	case media.FailCompressionInsufficient:
		return msgStillTooBig
	case media.FailTranscode:
		return msgTranscode
	default:
		return msgInternal
	}
}
