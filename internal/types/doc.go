// Package types holds the websocket wire messages.
//
// Client -> Server (every request may carry req_id; the answer echoes it):
//
//	publish:   state {video_ref, is_playing, position_seconds}, optional
//	           if_updated_at (rejected with a stale error unless the room
//	           state still carries that updated_at)
//	set_video: input (watch URL, youtu.be link or bare id)
//	enqueue:   input, position (sender's playhead, seconds)
//	remove:    id
//	set_order: id, order_key
//
// Server -> Client:
//
//	playback: playback, sent on join and after every committed write
//	queue:    queue (ordered, with title and thumbnail), sent on join, after every
//	          change and again once titles that were shown raw resolve
//	ack:      req_id, entry_id for enqueue
//	error:    req_id, error; sent to the requesting client only
package types
