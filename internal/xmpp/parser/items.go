package parser

import (
	"errors"
	"fmt"
	"strconv"

	"mellium.im/xmpp/jid"

	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/xmpp/element"
	"github.com/meszmate/roster-core/internal/xmpp/ns"
)

var errMissingPayload = errors.New("item has no payload")

func parseString(id string) (string, error) {
	return id, nil
}

func parseRoomID(id string) (domain.RoomID, error) {
	j, err := jid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("invalid room jid: %w", err)
	}
	return domain.NewRoomID(j), nil
}

func parseBookmark(item *element.Element) (domain.Bookmark, error) {
	room, err := parseRoomID(item.AttrValue("id"))
	if err != nil {
		return domain.Bookmark{}, err
	}
	conf := item.Child("conference", ns.Bookmarks)
	if conf == nil {
		return domain.Bookmark{}, errMissingPayload
	}

	b := domain.Bookmark{
		RoomID: room,
		Name:   conf.AttrValue("name"),
	}
	if v := conf.AttrValue("autojoin"); v != "" {
		b.Autojoin, err = strconv.ParseBool(v)
		if err != nil {
			return domain.Bookmark{}, fmt.Errorf("invalid autojoin: %w", err)
		}
	}
	b.Nick, _ = conf.ChildText("nick", ns.Bookmarks)
	b.Password, _ = conf.ChildText("password", ns.Bookmarks)
	return b, nil
}

// parseAvatarMetadata returns nil for an empty <metadata/>, which means the
// avatar was disabled.
func parseAvatarMetadata(item *element.Element) (*domain.AvatarMetadata, error) {
	meta := item.Child("metadata", ns.AvatarMeta)
	if meta == nil {
		return nil, errMissingPayload
	}
	info := meta.Child("info", ns.AvatarMeta)
	if info == nil {
		return nil, nil
	}

	m := &domain.AvatarMetadata{
		ID:       info.AttrValue("id"),
		MimeType: info.AttrValue("type"),
		URL:      info.AttrValue("url"),
	}
	if m.ID == "" {
		return nil, errors.New("avatar info has no id")
	}
	for attr, dst := range map[string]*int{"bytes": &m.Bytes, "width": &m.Width, "height": &m.Height} {
		v := info.AttrValue(attr)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid avatar %s: %w", attr, err)
		}
		*dst = n
	}
	return m, nil
}

func parseNick(item *element.Element) (string, error) {
	nick, ok := item.ChildText("nick", ns.Nick)
	if !ok {
		return "", errMissingPayload
	}
	return nick, nil
}

// parseUserActivity reads the emoji from <undefined><other>…</other></undefined>.
// An empty <activity/> retracts the status.
func parseUserActivity(item *element.Element) (*domain.UserStatus, error) {
	activity := item.Child("activity", ns.UserActivity)
	if activity == nil {
		return nil, errMissingPayload
	}
	if len(activity.Children) == 0 {
		return nil, nil
	}

	status := &domain.UserStatus{}
	var general string
	for _, c := range activity.Children {
		if c.Name.Local == "text" {
			status.Status = c.Text
			continue
		}
		general = c.Name.Local
		if other := c.Child("other", ns.UserActivity); other != nil {
			status.Emoji = other.Text
		}
	}
	if status.Emoji == "" {
		return nil, errors.New("activity has no emoji")
	}
	if status.Status == "" && general != "undefined" {
		status.Status = general
	}
	return status, nil
}

func parseVCard4(item *element.Element) (*domain.Profile, error) {
	vcard := item.Child("vcard", ns.VCard4)
	if vcard == nil {
		return nil, errMissingPayload
	}
	profile := &domain.Profile{}
	if fn := vcard.Child("fn", ns.VCard4); fn != nil {
		profile.FullName, _ = fn.ChildText("text", ns.VCard4)
	}
	if nick := vcard.Child("nickname", ns.VCard4); nick != nil {
		profile.Nickname, _ = nick.ChildText("text", ns.VCard4)
	}
	return profile, nil
}
