package entities

import (
	"time"

	"wisdomwalk/pkg/consts"
)

type GroupSettings struct {
	IsPrivate            bool `json:"is_private"`
	OnlyAdminsCanMessage bool `json:"only_admins_can_message"`
}

type GroupMember struct {
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	IsMuted  bool      `json:"is_muted"`
	JoinedAt time.Time `json:"joined_at"`
}

type Group struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description,omitempty"`
	Avatar         string        `json:"avatar,omitempty"`
	Creator        string        `json:"creator"`
	Admins         []string      `json:"admins"`
	Members        []GroupMember `json:"members"`
	InviteLink     string        `json:"invite_link,omitempty"`
	Settings       GroupSettings `json:"settings"`
	ConversationID string        `json:"conversation_id"`
	PinnedPosts    []string      `json:"pinned_posts,omitempty"`
	IsActive       bool          `json:"is_active"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (g *Group) IsMember(user string) bool {
	return g.Member(user) != nil
}

func (g *Group) IsAdmin(user string) bool {
	for _, admin := range g.Admins {
		if admin == user {
			return true
		}
	}
	return false
}

func (g *Group) Member(user string) *GroupMember {
	for i := range g.Members {
		if g.Members[i].UserID == user {
			return &g.Members[i]
		}
	}
	return nil
}

func (g *Group) MemberIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

// DeriveAdmins rebuilds Admins from the member roles, which are the source of
// truth for the roster.
func (g *Group) DeriveAdmins() {
	g.Admins = make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		if m.Role == consts.RoleAdmin {
			g.Admins = append(g.Admins, m.UserID)
		}
	}
}

func (g *Group) HasPinnedPost(postID string) bool {
	for _, p := range g.PinnedPosts {
		if p == postID {
			return true
		}
	}
	return false
}

// request bodies

type CreateGroupRequest struct {
	Name        string         `json:"name" binding:"required,max=100"`
	Description string         `json:"description,omitempty" binding:"max=500"`
	Avatar      string         `json:"avatar,omitempty" binding:"max=2048"`
	Members     []string       `json:"members,omitempty" binding:"max=256"`
	Settings    *GroupSettings `json:"settings,omitempty"`
}

// UpdateGroupRequest only changes the fields that are set.
type UpdateGroupRequest struct {
	Name        *string        `json:"name,omitempty" binding:"omitempty,min=1,max=100"`
	Description *string        `json:"description,omitempty" binding:"omitempty,max=500"`
	Avatar      *string        `json:"avatar,omitempty" binding:"omitempty,max=2048"`
	Settings    *GroupSettings `json:"settings,omitempty"`
}

type AddMembersRequest struct {
	Users []string `json:"users" binding:"required,min=1,max=256"`
}

type PinnedPostResult struct {
	PostID string `json:"post_id"`
	Pinned bool   `json:"pinned"`
}
