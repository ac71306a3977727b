package bot

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndmitry/grabit/internal/media"
)

// fakeMessenger records every call. terminal is signalled once the
// dispatcher reaches a final state.
type fakeMessenger struct {
	mu       sync.Mutex
	statuses []string
	texts    []string
	groups   [][]media.Item
	audio    []media.Item
	deleted  bool
	terminal chan struct{}

	groupErr error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{terminal: make(chan struct{}, 1)}
}

func (f *fakeMessenger) signal() {
	select {
	case f.terminal <- struct{}{}:
	default:
	}
}

func (f *fakeMessenger) SendStatus(chatID int64, replyTo int, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, text)
	return 100, nil
}

func (f *fakeMessenger) EditStatus(chatID int64, messageID int, text string) {
	f.mu.Lock()
	f.statuses = append(f.statuses, text)
	failed := isFailureText(text)
	f.mu.Unlock()
	if failed {
		f.signal()
	}
}

func (f *fakeMessenger) DeleteStatus(chatID int64, messageID int) {
	f.mu.Lock()
	f.deleted = true
	f.mu.Unlock()
	f.signal()
}

func (f *fakeMessenger) SendMediaGroup(chatID int64, items []media.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.groupErr != nil {
		return f.groupErr
	}
	batch := make([]media.Item, len(items))
	copy(batch, items)
	f.groups = append(f.groups, batch)
	return nil
}

func (f *fakeMessenger) SendAudio(chatID int64, item media.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, item)
	return nil
}

func (f *fakeMessenger) SendText(chatID int64, replyTo int, text string) error {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeMessenger) SendTyping(chatID int64) {}

func (f *fakeMessenger) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

func (f *fakeMessenger) lastStatus() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return ""
	}
	return f.statuses[len(f.statuses)-1]
}

func isFailureText(text string) bool {
	switch text {
	case statusQueued, statusFetching, statusProcessing, statusCompress:
		return false
	}
	return true
}

func item(t media.Type, caption string) media.Item {
	return media.Item{Data: []byte{1}, Type: t, Caption: caption}
}

func TestDeliverPartitionsAudioFromVisualMedia(t *testing.T) {
	f := newFakeMessenger()
	items := []media.Item{
		item(media.Video, "v1"),
		item(media.Audio, "a1"),
		item(media.Photo, "p1"),
		item(media.Audio, "a2"),
	}

	require.NoError(t, deliver(f, 1, items))

	require.Len(t, f.groups, 1)
	require.Len(t, f.groups[0], 2)
	assert.Equal(t, "v1", f.groups[0][0].Caption)
	assert.Equal(t, "p1", f.groups[0][1].Caption)

	require.Len(t, f.audio, 2)
	assert.Equal(t, "a1", f.audio[0].Caption)
	assert.Equal(t, "a2", f.audio[1].Caption)
}

func TestDeliverChunksLargeAlbums(t *testing.T) {
	f := newFakeMessenger()
	var items []media.Item
	for i := 0; i < 23; i++ {
		items = append(items, item(media.Photo, fmt.Sprintf("p%d", i)))
	}

	require.NoError(t, deliver(f, 1, items))

	require.Len(t, f.groups, 3)
	assert.Len(t, f.groups[0], 10)
	assert.Len(t, f.groups[1], 10)
	assert.Len(t, f.groups[2], 3)
	// Order survives chunking.
	assert.Equal(t, "p0", f.groups[0][0].Caption)
	assert.Equal(t, "p22", f.groups[2][2].Caption)
}

func TestDeliverPropagatesSendFailure(t *testing.T) {
	f := newFakeMessenger()
	f.groupErr = fmt.Errorf("telegram said no")

	err := deliver(f, 1, []media.Item{item(media.Video, ""), item(media.Video, "")})
	require.Error(t, err)
	assert.Empty(t, f.groups)
}
