package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wisdomwalk/pkg/entities"
	"wisdomwalk/pkg/middlewares"
	"wisdomwalk/pkg/usecases"
	"wisdomwalk/utilities"
)

type GroupController struct {
	router      *gin.RouterGroup
	useCases    usecases.GroupUseCaseImply
	middleWares *middlewares.Middlewares
}

func NewGroupController(
	router *gin.RouterGroup, groupUseCases usecases.GroupUseCaseImply, middleWare *middlewares.Middlewares,
) *GroupController {
	return &GroupController{
		router:      router,
		useCases:    groupUseCases,
		middleWares: middleWare,
	}
}

// InitRoutes initializes the group routes.
func (g *GroupController) InitRoutes() {
	verified := authorized(g.router, g.middleWares)
	{
		verified.POST("/groups", g.CreateGroup)
		verified.GET("/groups", g.ListGroups)
		verified.GET("/groups/:id", g.GetGroup)
		verified.PUT("/groups/:id", g.UpdateGroup)
		verified.DELETE("/groups/:id", g.DeleteGroup)
		verified.POST("/groups/join/:inviteLink", g.JoinByInvite)
		verified.POST("/groups/:id/join", g.JoinGroup)
		verified.POST("/groups/:id/leave", g.LeaveGroup)
		verified.GET("/groups/:id/members", g.ListMembers)
		verified.POST("/groups/:id/members", g.AddMembers)
		verified.DELETE("/groups/:id/members/:userId", g.RemoveMember)
		verified.POST("/groups/:id/members/:userId/mute", g.MuteMember)
		verified.DELETE("/groups/:id/members/:userId/mute", g.UnmuteMember)
		verified.POST("/groups/:id/admins/:userId", g.PromoteAdmin)
		verified.DELETE("/groups/:id/admins/:userId", g.DemoteAdmin)
		verified.POST("/groups/:id/invite-link", g.RegenerateInviteLink)
		verified.GET("/groups/:id/messages", g.GetGroupMessages)
		verified.POST("/groups/:id/messages", g.SendGroupMessage)
		verified.POST("/groups/:id/posts/:postId/pin", g.TogglePinnedPost)
	}
}

func (g *GroupController) CreateGroup(ctx *gin.Context) {
	log := utilities.NewLogger("CreateGroup")

	req := entities.CreateGroupRequest{}
	if err := bind(ctx, &req); err != nil {
		fail(ctx, log, err)
		return
	}

	res, err := g.useCases.CreateGroup(ctx, caller(ctx), req)
	if err != nil {
		fail(ctx, log, err)
		return
	}

	log.Infof("group %s created by %s", res.ID, res.Creator)
	ok(ctx, http.StatusCreated, "Group created successfully.", res)
}

func (g *GroupController) ListGroups(ctx *gin.Context) {
	log := utilities.NewLogger("ListGroups")

	res, err := g.useCases.ListGroups(ctx, caller(ctx))
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Groups retrieved successfully.", res)
}

func (g *GroupController) GetGroup(ctx *gin.Context) {
	log := utilities.NewLogger("GetGroup")

	res, err := g.useCases.GetGroup(ctx, caller(ctx), ctx.Param("id"))
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Group retrieved successfully.", res)
}

func (g *GroupController) UpdateGroup(ctx *gin.Context) {
	log := utilities.NewLogger("UpdateGroup")

	req := entities.UpdateGroupRequest{}
	if err := bind(ctx, &req); err != nil {
		fail(ctx, log, err)
		return
	}

	res, err := g.useCases.UpdateGroup(ctx, caller(ctx), ctx.Param("id"), req)
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Group updated successfully.", res)
}

func (g *GroupController) DeleteGroup(ctx *gin.Context) {
	log := utilities.NewLogger("DeleteGroup")

	if err := g.useCases.DeleteGroup(ctx, caller(ctx), ctx.Param("id")); err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Group deleted successfully.", nil)
}

func (g *GroupController) JoinByInvite(ctx *gin.Context) {
	log := utilities.NewLogger("JoinByInvite")

	res, err := g.useCases.JoinByInvite(ctx, caller(ctx), ctx.Param("inviteLink"))
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Joined group successfully.", res)
}

func (g *GroupController) JoinGroup(ctx *gin.Context) {
	log := utilities.NewLogger("JoinGroup")

	res, err := g.useCases.JoinGroup(ctx, caller(ctx), ctx.Param("id"))
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Joined group successfully.", res)
}

func (g *GroupController) LeaveGroup(ctx *gin.Context) {
	log := utilities.NewLogger("LeaveGroup")

	if err := g.useCases.LeaveGroup(ctx, caller(ctx), ctx.Param("id")); err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Left group successfully.", nil)
}

func (g *GroupController) ListMembers(ctx *gin.Context) {
	log := utilities.NewLogger("ListMembers")

	res, err := g.useCases.ListMembers(ctx, caller(ctx), ctx.Param("id"))
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Members retrieved successfully.", res)
}

func (g *GroupController) AddMembers(ctx *gin.Context) {
	log := utilities.NewLogger("AddMembers")

	req := entities.AddMembersRequest{}
	if err := bind(ctx, &req); err != nil {
		fail(ctx, log, err)
		return
	}

	res, err := g.useCases.AddMembers(ctx, caller(ctx), ctx.Param("id"), req.Users)
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Members added successfully.", res)
}

func (g *GroupController) RemoveMember(ctx *gin.Context) {
	log := utilities.NewLogger("RemoveMember")

	if err := g.useCases.RemoveMember(ctx, caller(ctx), ctx.Param("id"), ctx.Param("userId")); err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Member removed successfully.", nil)
}

func (g *GroupController) MuteMember(ctx *gin.Context) {
	g.setMemberMuted(ctx, true)
}

func (g *GroupController) UnmuteMember(ctx *gin.Context) {
	g.setMemberMuted(ctx, false)
}

func (g *GroupController) setMemberMuted(ctx *gin.Context, muted bool) {
	log := utilities.NewLoggerWithFields("MuteMember", map[string]interface{}{"muted": muted})

	err := g.useCases.MuteMember(ctx, caller(ctx), ctx.Param("id"), ctx.Param("userId"), muted)
	if err != nil {
		fail(ctx, log, err)
		return
	}

	message := "Member unmuted."
	if muted {
		message = "Member muted."
	}
	ok(ctx, http.StatusOK, message, nil)
}

func (g *GroupController) PromoteAdmin(ctx *gin.Context) {
	log := utilities.NewLogger("PromoteAdmin")

	if err := g.useCases.PromoteAdmin(ctx, caller(ctx), ctx.Param("id"), ctx.Param("userId")); err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Member promoted to admin.", nil)
}

func (g *GroupController) DemoteAdmin(ctx *gin.Context) {
	log := utilities.NewLogger("DemoteAdmin")

	if err := g.useCases.DemoteAdmin(ctx, caller(ctx), ctx.Param("id"), ctx.Param("userId")); err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Admin demoted to member.", nil)
}

func (g *GroupController) RegenerateInviteLink(ctx *gin.Context) {
	log := utilities.NewLogger("RegenerateInviteLink")

	link, err := g.useCases.RegenerateInviteLink(ctx, caller(ctx), ctx.Param("id"))
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Invite link regenerated.", map[string]string{"invite_link": link})
}

func (g *GroupController) GetGroupMessages(ctx *gin.Context) {
	log := utilities.NewLogger("GetGroupMessages")

	limit, err := queryInt(ctx, "limit", "0")
	if err != nil {
		fail(ctx, log, err)
		return
	}

	res, err := g.useCases.GetGroupMessages(ctx, caller(ctx), ctx.Param("id"), ctx.Query("before"), limit)
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Messages retrieved successfully.", res)
}

func (g *GroupController) SendGroupMessage(ctx *gin.Context) {
	log := utilities.NewLogger("SendGroupMessage")

	req := entities.SendMessageRequest{}
	if err := bind(ctx, &req); err != nil {
		fail(ctx, log, err)
		return
	}

	res, err := g.useCases.SendGroupMessage(ctx, caller(ctx), ctx.Param("id"), req)
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusCreated, "Message sent successfully.", res)
}

func (g *GroupController) TogglePinnedPost(ctx *gin.Context) {
	log := utilities.NewLogger("TogglePinnedPost")

	res, err := g.useCases.TogglePinnedPost(ctx, caller(ctx), ctx.Param("id"), ctx.Param("postId"))
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Pinned posts updated.", res)
}
