package bot

import (
	"github.com/ndmitry/grabit/internal/media"
)

// Telegram caps a media group at ten entries.
const mediaGroupMax = 10

// deliver sends the processed items. Photos and videos are batched
// into media groups in their original order; audio goes out as
// individual messages since Telegram won't mix it into an album.
func deliver(msgr Messenger, chatID int64, items []media.Item) error {
	var grouped []media.Item
	var audio []media.Item
	for _, it := range items {
		if it.Type == media.Audio {
			audio = append(audio, it)
		} else {
			grouped = append(grouped, it)
		}
	}

	for start := 0; start < len(grouped); start += mediaGroupMax {
		end := start + mediaGroupMax
		if end > len(grouped) {
			end = len(grouped)
		}
		if err := msgr.SendMediaGroup(chatID, grouped[start:end]); err != nil {
			return err
		}
	}

	for _, it := range audio {
		if err := msgr.SendAudio(chatID, it); err != nil {
			return err
		}
	}
	return nil
}
