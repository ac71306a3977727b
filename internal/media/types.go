package media

// Type tags a deliverable piece of content.
type Type int

const (
	Video Type = iota
	Photo
	Audio
)

func (t Type) String() string {
	switch t {
	case Video:
		return "video"
	case Photo:
		return "photo"
	case Audio:
		return "audio"
	}
	return "unknown"
}

// DownloadResult is the transport form a fetcher hands back before any
// size accounting happens.
type DownloadResult struct {
	Data    []byte
	Type    Type
	Caption string
}

// Item is one deliverable media unit. Size is derived from the current
// bytes, so replacing Data via WithData can never leave a stale size.
type Item struct {
	Data    []byte
	Type    Type
	Caption string
}

func NewItem(r DownloadResult) Item {
	return Item{Data: r.Data, Type: r.Type, Caption: r.Caption}
}

// SizeMB reports len(Data)/2^20.
func (i Item) SizeMB() float64 {
	return float64(len(i.Data)) / (1 << 20)
}

// WithData returns a copy of the item carrying re-encoded bytes.
func (i Item) WithData(data []byte) Item {
	i.Data = data
	return i
}
