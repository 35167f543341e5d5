// Package ns lists the XML namespaces the client understands.
package ns

import (
	"mellium.im/xmpp/disco"
	"mellium.im/xmpp/muc"
	"mellium.im/xmpp/ping"
)

const (
	Client = "jabber:client"
	Server = "jabber:server"

	MUCUser    = muc.NSUser
	Conference = "jabber:x:conference"
	OccupantID = "urn:xmpp:occupant-id:0"

	PubSub       = "http://jabber.org/protocol/pubsub"
	PubSubEvent  = "http://jabber.org/protocol/pubsub#event"
	Bookmarks    = "urn:xmpp:bookmarks:1"
	AvatarData   = "urn:xmpp:avatar:data"
	AvatarMeta   = "urn:xmpp:avatar:metadata"
	Nick         = "http://jabber.org/protocol/nick"
	UserActivity = "http://jabber.org/protocol/activity"
	VCard4       = "urn:ietf:params:xml:ns:vcard-4.0"

	Carbons    = "urn:xmpp:carbons:2"
	Forward    = "urn:xmpp:forward:0"
	Delay      = "urn:xmpp:delay"
	MAM        = "urn:xmpp:mam:2"
	StanzaID   = "urn:xmpp:sid:0"
	ChatStates = "http://jabber.org/protocol/chatstates"
	Receipts   = "urn:xmpp:receipts"
	Markers    = "urn:xmpp:chat-markers:0"
	Reactions  = "urn:xmpp:reactions:0"
	Fasten     = "urn:xmpp:fasten:0"
	Retract0   = "urn:xmpp:message-retract:0"
	Retract1   = "urn:xmpp:message-retract:1"
	Correct    = "urn:xmpp:message-correct:0"
	OOB        = "jabber:x:oob"

	Caps         = "http://jabber.org/protocol/caps"
	DiscoInfo    = disco.NSInfo
	Ping         = ping.NS
	Time         = "urn:xmpp:time"
	LastActivity = "jabber:iq:last"
	Version      = "jabber:iq:version"
	Stanzas      = "urn:ietf:params:xml:ns:xmpp-stanzas"
)

// Notify returns the +notify feature that subscribes to PEP updates of ns.
func Notify(ns string) string {
	return ns + "+notify"
}
