package store

import (
	"github.com/Vanequal/ideafeed/internal/models"
)

type pairKey struct {
	section string
	theme   int64
}

// matches reports whether p belongs to the pair. Theme 0 means any theme.
func (k pairKey) matches(p models.Post) bool {
	return p.SectionCode == k.section && (k.theme == 0 || p.ThemeID == k.theme)
}

// backfill holds attachment/reaction data that arrived before its post
type backfill struct {
	attachments       []models.Attachment
	attachmentsLoaded bool
	reactions         models.Reactions
}

type state struct {
	posts []models.Post
	index map[int64]int

	loaded  map[pairKey]bool
	loading map[pairKey]bool
	err     string

	pending map[int64]backfill

	comments        map[int64][]models.Comment
	commentsLoading map[int64]bool
	commentErrors   map[int64]string

	themes map[int64]models.Theme
	me     *models.User
}

func newState() state {
	return state{
		index:           make(map[int64]int),
		loaded:          make(map[pairKey]bool),
		loading:         make(map[pairKey]bool),
		pending:         make(map[int64]backfill),
		comments:        make(map[int64][]models.Comment),
		commentsLoading: make(map[int64]bool),
		commentErrors:   make(map[int64]string),
		themes:          make(map[int64]models.Theme),
	}
}

// reduce applies a to st and returns the id of the post it touched, if any
func reduce(st *state, a Action) int64 {
	switch a := a.(type) {
	case PostsPending:
		st.loading[pairKey{a.SectionCode, a.ThemeID}] = true
		st.err = ""

	case PostsFulfilled:
		key := pairKey{a.SectionCode, a.ThemeID}
		var previous map[int64]models.Post
		if a.Offset == 0 {
			previous = st.dropPair(key)
		}
		for _, p := range a.Posts {
			if p.SectionCode == "" {
				p.SectionCode = a.SectionCode
			}
			if p.ThemeID == 0 {
				p.ThemeID = a.ThemeID
			}
			if old, ok := previous[p.ID]; ok {
				p = mergePost(old, p)
			}
			st.upsert(p)
		}
		delete(st.loading, key)
		st.loaded[key] = true
		st.err = ""

	case PostsRejected:
		delete(st.loading, pairKey{a.SectionCode, a.ThemeID})
		if a.Err != nil {
			st.err = a.Err.Error()
		}

	case PostUpserted:
		st.upsert(a.Post)
		return a.Post.ID

	case AttachmentsFetched:
		i, ok := st.index[a.ID]
		if !ok {
			b := st.pending[a.ID]
			b.attachments, b.attachmentsLoaded = a.Attachments, true
			st.pending[a.ID] = b
			return a.ID
		}
		p := st.posts[i]
		p.Attachments = a.Attachments
		p.AttachmentsLoaded = true
		st.posts[i] = p
		return a.ID

	case ReactionsFetched:
		i, ok := st.index[a.ID]
		if !ok {
			b := st.pending[a.ID]
			b.reactions = b.reactions.Merge(a.Reactions)
			st.pending[a.ID] = b
			return a.ID
		}
		p := st.posts[i]
		p.Reactions = p.Reactions.Merge(a.Reactions)
		p.ReactionsLoaded = p.ReactionsLoaded || !a.Reactions.IsEmpty()
		st.posts[i] = p
		return a.ID

	case CommentsPending:
		st.commentsLoading[a.ID] = true
		delete(st.commentErrors, a.ID)
		return a.ID

	case CommentsFulfilled:
		comments := a.Comments
		if comments == nil {
			comments = []models.Comment{}
		}
		st.comments[a.ID] = comments
		delete(st.commentsLoading, a.ID)
		delete(st.commentErrors, a.ID)
		return a.ID

	case CommentsRejected:
		// No entry and no flag: the next mount retries.
		delete(st.commentsLoading, a.ID)
		delete(st.comments, a.ID)
		if a.Err != nil {
			st.commentErrors[a.ID] = a.Err.Error()
		}
		return a.ID

	case ThemeFetched:
		st.themes[a.Theme.ID] = a.Theme

	case UserFetched:
		u := a.User
		st.me = &u
	}
	return 0
}

// upsert inserts p or merges it into the cached entry with the same id
func (st *state) upsert(p models.Post) {
	if b, ok := st.pending[p.ID]; ok {
		if b.attachmentsLoaded {
			p.Attachments, p.AttachmentsLoaded = b.attachments, true
		}
		if !b.reactions.IsEmpty() {
			p.Reactions = p.Reactions.Merge(b.reactions)
			p.ReactionsLoaded = true
		}
		delete(st.pending, p.ID)
	}

	i, ok := st.index[p.ID]
	if !ok {
		st.index[p.ID] = len(st.posts)
		st.posts = append(st.posts, p)
		return
	}
	st.posts[i] = mergePost(st.posts[i], p)
}

// mergePost overlays incoming onto existing without losing backfilled fields
func mergePost(existing, incoming models.Post) models.Post {
	out := incoming
	if !incoming.AttachmentsLoaded && existing.AttachmentsLoaded {
		out.Attachments = existing.Attachments
		out.AttachmentsLoaded = true
	}
	out.Reactions = existing.Reactions.Merge(incoming.Reactions)
	out.ReactionsLoaded = existing.ReactionsLoaded || incoming.ReactionsLoaded
	if out.SectionCode == "" {
		out.SectionCode = existing.SectionCode
	}
	if out.ThemeID == 0 {
		out.ThemeID = existing.ThemeID
	}
	if out.Executions == nil {
		out.Executions = existing.Executions
	}
	return out
}

// dropPair removes the posts cached for key, reindexes the rest and returns
// the removed posts by id
func (st *state) dropPair(key pairKey) map[int64]models.Post {
	removed := make(map[int64]models.Post)
	kept := st.posts[:0:0]
	for _, p := range st.posts {
		if key.matches(p) {
			removed[p.ID] = p
			continue
		}
		kept = append(kept, p)
	}
	st.posts = kept
	st.index = make(map[int64]int, len(kept))
	for i, p := range kept {
		st.index[p.ID] = i
	}
	return removed
}
