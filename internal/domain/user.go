package domain

// AvatarMetadata is one <info/> entry of a XEP-0084 metadata item.
type AvatarMetadata struct {
	ID       string
	MimeType string
	Bytes    int
	Width    int
	Height   int
	URL      string
}

// Profile is the part of a vCard4 we care about.
type Profile struct {
	FullName string
	Nickname string
}

// UserStatus is an emoji plus optional text, published as user activity.
type UserStatus struct {
	Emoji  string
	Status string
}

// Bookmark is a XEP-0402 room bookmark.
type Bookmark struct {
	RoomID   RoomID
	Name     string
	Nick     string
	Password string
	Autojoin bool
}
