package session

import "github.com/siret/somhunter-go/internal/types"

// LikeFrames toggles each id's presence in the current context's Likes
// set and reports the resulting state (true = now liked), grounded on
// SomHunter::like_frames. Likes accumulate across displays within one
// search context and feed ApplyBayes at the next Rescore, then clear.
func (u *UserContext) LikeFrames(ids []types.FrameID) []bool {
	return toggleAll(u.Current.Likes, ids)
}

// BookmarkFrames toggles each id's presence in the session-wide
// Bookmarks set (bookmarks persist across rescores and history
// switches, unlike likes) and reports the resulting state.
func (u *UserContext) BookmarkFrames(ids []types.FrameID) []bool {
	return toggleAll(u.Bookmarks, ids)
}

func toggleAll(set map[types.FrameID]bool, ids []types.FrameID) []bool {
	out := make([]bool, len(ids))
	for i, id := range ids {
		if set[id] {
			delete(set, id)
			out[i] = false
		} else {
			set[id] = true
			out[i] = true
		}
	}
	return out
}
