// Package media defines the normalized media item and profile types
// shared by the fetch services, the HTTP API, and the downloader.
package media

import (
	"fmt"
	"time"

	"igvault/pkg/instagram"
)

// Item types.
const (
	TypeVideo = "video"
	TypeImage = "image"
)

// Item is a single downloadable media entry, normalized from the
// upstream story and feed representations.
type Item struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Type     string `json:"media_type"`
	URL      string `json:"url"`
	// Thumbnail is only set for videos; image items carry their full
	// URL in URL and no separate thumbnail.
	Thumbnail string `json:"thumbnail_url,omitempty"`
	TakenAt   string `json:"timestamp,omitempty"`
	Likes     int    `json:"like_count,omitempty"`
	Caption   string `json:"caption,omitempty"`
	PostID    string `json:"post_id,omitempty"`
	// CarouselIndex and CarouselTotal are pointers so index 0 is still
	// serialized; both are nil outside carousel children.
	CarouselIndex *int `json:"carousel_index,omitempty"`
	CarouselTotal *int `json:"carousel_total,omitempty"`
}

// Profile is the owner of a set of media items.
type Profile struct {
	UserID        string `json:"-"`
	Username      string `json:"username"`
	FullName      string `json:"full_name,omitempty"`
	ProfilePicURL string `json:"profile_pic_url,omitempty"`
	IsPrivate     bool   `json:"is_private"`
	Followers     int    `json:"followers,omitempty"`
	MediaCount    int    `json:"media_count,omitempty"`
}

// IsVideo reports whether the item is a video.
func (i Item) IsVideo() bool {
	return i.Type == TypeVideo
}

// Filename returns the canonical disk name for the item,
// "{username}_{id}" with the extension matching the media type.
func (i Item) Filename(username string) string {
	ext := "jpg"
	if i.IsVideo() {
		ext = "mp4"
	}
	return fmt.Sprintf("%s_%s.%s", username, i.ID, ext)
}

// FromReelItem converts a story item to the normalized form. Returns
// false when the item carries no usable media URL.
func FromReelItem(ri instagram.MediaItem, username string) (Item, bool) {
	item := Item{
		ID:       ri.PK.String(),
		Username: username,
		TakenAt:  formatTakenAt(ri.TakenAt),
	}

	if ri.IsVideo() {
		item.Type = TypeVideo
		item.URL = ri.BestVideoURL()
		item.Thumbnail = ri.BestImageURL()
	} else {
		item.Type = TypeImage
		item.URL = ri.BestImageURL()
	}

	if item.URL == "" {
		return Item{}, false
	}
	return item, true
}

// FromFeedItem converts a post to normalized items. Carousel posts
// expand into one item per child, with zero-based IDs "{postID}_{index}"
// so the children sort next to each other on disk.
func FromFeedItem(fi instagram.MediaItem, username string) []Item {
	postID := fi.PK.String()
	takenAt := formatTakenAt(fi.TakenAt)
	caption := ""
	if fi.Caption != nil {
		caption = fi.Caption.Text
	}

	if fi.MediaType == instagram.MediaTypeCarousel {
		total := len(fi.CarouselMedia)
		items := make([]Item, 0, total)
		for idx, child := range fi.CarouselMedia {
			item, ok := fromSingle(child)
			if !ok {
				continue
			}
			// Children are numbered from zero, so the first child of
			// post 555 is "555_0".
			position := idx
			count := total
			item.ID = fmt.Sprintf("%s_%d", postID, position)
			item.Username = username
			item.TakenAt = takenAt
			item.Likes = fi.LikeCount
			item.Caption = caption
			item.PostID = postID
			item.CarouselIndex = &position
			item.CarouselTotal = &count
			items = append(items, item)
		}
		return items
	}

	item, ok := fromSingle(fi)
	if !ok {
		return nil
	}
	item.ID = postID
	item.Username = username
	item.TakenAt = takenAt
	item.Likes = fi.LikeCount
	item.Caption = caption
	item.PostID = postID
	return []Item{item}
}

func fromSingle(mi instagram.MediaItem) (Item, bool) {
	item := Item{}

	if mi.IsVideo() {
		item.Type = TypeVideo
		item.URL = mi.BestVideoURL()
		item.Thumbnail = mi.BestImageURL()
	} else {
		item.Type = TypeImage
		item.URL = mi.BestImageURL()
	}

	if item.URL == "" {
		return Item{}, false
	}
	return item, true
}

// ProfileFromSearch builds a profile from a search result.
func ProfileFromSearch(su instagram.SearchUser) Profile {
	return Profile{
		UserID:        su.PK.String(),
		Username:      su.Username,
		FullName:      su.FullName,
		ProfilePicURL: su.ProfilePicURL,
		IsPrivate:     su.IsPrivate,
		Followers:     su.FollowerCount,
	}
}

// ProfileFromInfo builds a profile from the user info endpoint.
func ProfileFromInfo(iu instagram.InfoUser) Profile {
	return Profile{
		UserID:        iu.PK.String(),
		Username:      iu.Username,
		FullName:      iu.FullName,
		ProfilePicURL: iu.ProfilePicURL,
		IsPrivate:     iu.IsPrivate,
		Followers:     iu.FollowerCount,
		MediaCount:    iu.MediaCount,
	}
}

func formatTakenAt(unix int64) string {
	if unix == 0 {
		return ""
	}
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}
