// Package rtmp implements an RTMP live relay: the handshake, the chunk stream, the server side of the
// NetConnection/NetStream command flow and the per-stream Group that fans a single origin out to RTMP
// and HTTP-FLV subscribers.
package rtmp

import "strings"

// Status codes sent in onStatus and _result information objects.
const (
	NetConnectionConnectSuccess = "NetConnection.Connect.Success"
	NetStreamPublishStart       = "NetStream.Publish.Start"
	NetStreamPublishBadName     = "NetStream.Publish.BadName"
	NetStreamPlayReset          = "NetStream.Play.Reset"
	NetStreamPlayStart          = "NetStream.Play.Start"
	NetStreamPlayFailed         = "NetStream.Play.Failed"
)

// StreamKey identifies a Group, as "app/name".
func StreamKey(app string, name string) string {
	return app + "/" + name
}

// trimStreamName drops the query string some encoders append to the stream name ("name?token=...").
func trimStreamName(name string) string {
	if i := strings.IndexByte(name, '?'); i >= 0 {
		return name[:i]
	}
	return name
}
