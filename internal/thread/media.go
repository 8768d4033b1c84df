package thread

import "slices"

// MediaKind tags an attachment. Photos batch together; a gif or video is
// always posted alone.
type MediaKind int

const (
	Photo MediaKind = iota
	GIF
	Video
)

// MaxPhotosPerPost caps a photo batch.
const MaxPhotosPerPost = 4

func (k MediaKind) String() string {
	switch k {
	case Photo:
		return "photo"
	case GIF:
		return "gif"
	case Video:
		return "video"
	default:
		return "unknown"
	}
}

// Media is an attachment reference. Ref is opaque to the composer; the
// publisher decides how to resolve it (file path, URL, upload id).
type Media struct {
	Ref  string
	Kind MediaKind
}

// nextBatch returns the batch starting at idx: a single gif or video, or up
// to MaxPhotosPerPost consecutive photos.
func nextBatch(media []Media, idx int) []Media {
	if media[idx].Kind != Photo {
		return slices.Clone(media[idx : idx+1])
	}
	end := idx
	for end < len(media) && end-idx < MaxPhotosPerPost && media[end].Kind == Photo {
		end++
	}
	return slices.Clone(media[idx:end])
}
