// internal/app/features/groups/groups.go
package groups

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dalemusser/cohorthub/internal/app/features/cohorts"
	"github.com/dalemusser/cohorthub/internal/app/membership"
	"github.com/dalemusser/cohorthub/internal/app/policy/grouppolicy"
	"github.com/dalemusser/cohorthub/internal/app/system/apperr"
	"github.com/dalemusser/cohorthub/internal/app/system/auth"
	"github.com/dalemusser/cohorthub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/cohorthub/internal/app/system/inputval"
	"github.com/dalemusser/cohorthub/internal/app/system/normalize"
	"github.com/dalemusser/cohorthub/internal/app/system/respond"
	"github.com/dalemusser/cohorthub/internal/app/system/timeouts"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type techSkillInput struct {
	SkillName        string `json:"skill_name" validate:"required,max=50" label:"Skill name"`
	ExperienceMonths int    `json:"experience_months" validate:"min=0,max=600" label:"Experience (months)"`
	Mandatory        bool   `json:"mandatory"`
}

type roleRequirementInput struct {
	RoleName  string           `json:"role_name" validate:"required,max=50" label:"Role name"`
	TechStack []techSkillInput `json:"tech_stack" validate:"max=20,dive" label:"Tech stack"`
}

func toRoleRequirements(in []roleRequirementInput) []models.RoleRequirement {
	out := make([]models.RoleRequirement, 0, len(in))
	for _, rr := range in {
		stack := make([]models.TechSkill, 0, len(rr.TechStack))
		for _, ts := range rr.TechStack {
			stack = append(stack, models.TechSkill{
				SkillName:        normalize.Name(ts.SkillName),
				ExperienceMonths: ts.ExperienceMonths,
				Mandatory:        ts.Mandatory,
			})
		}
		out = append(out, models.RoleRequirement{RoleName: normalize.Name(rr.RoleName), TechStack: stack})
	}
	return out
}

type createGroupInput struct {
	Name             string                 `json:"name" validate:"required,min=5,max=20" label:"Group name"`
	MaximumMembers   int                    `json:"maximum_members" validate:"omitempty,min=2,max=50" label:"Maximum members"`
	RoleRequirements []roleRequirementInput `json:"role_requirements" validate:"max=10,dive" label:"Role requirements"`
}

// ServeCreate handles POST /cohorts/{cohortName}/groups. The caller
// becomes the group's creator and first member.
func (h *Handler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	var in createGroupInput
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	in.Name = normalize.Name(in.Name)
	if err := inputval.Validate(in).Err(); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "create group")
	defer cancel()

	c, err := cohorts.Load(ctx, h.Cohorts, r, u)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	g, err := h.Membership.CreateGroup(ctx, membership.CreateGroupInput{
		CreatorID:        u.ID,
		CohortID:         c.ID,
		Name:             in.Name,
		MaximumMembers:   in.MaximumMembers,
		RoleRequirements: toRoleRequirements(in.RoleRequirements),
	})
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.OK(w, http.StatusCreated, "group created", g)
}

type memberView struct {
	ID          primitive.ObjectID  `json:"id"`
	FullName    string              `json:"full_name"`
	Email       string              `json:"email"`
	Username    *string             `json:"username,omitempty"`
	AvatarURL   string              `json:"avatar_url,omitempty"`
	SocialLinks []models.SocialLink `json:"social_links"`
	IsAdmin     bool                `json:"is_admin"`
}

type groupDetails struct {
	Group        models.Group `json:"group"`
	Members      []memberView `json:"members"`
	IsGroupAdmin bool         `json:"is_group_admin"`
	IsMember     bool         `json:"is_member"`
}

// ServeGet handles GET /cohorts/{cohortName}/groups/{groupName}. Members
// and admins see the roster; outsiders get Forbidden.
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "get group")
	defer cancel()

	t, err := h.loadGroup(ctx, r, u)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	if !grouppolicy.CanViewGroup(*u, t.group) {
		respond.Fail(w, r, apperr.Forbidden, "only members and group admins can view this group")
		return
	}

	members, err := h.Users.ListMembers(ctx, t.group.ID)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	views := make([]memberView, 0, len(members))
	for _, m := range members {
		views = append(views, memberView{
			ID:          m.ID,
			FullName:    m.FullName,
			Email:       m.Email,
			Username:    m.Username,
			AvatarURL:   m.AvatarURL,
			SocialLinks: m.SocialLinks,
			IsAdmin:     grouppolicy.IsGroupAdmin(m, t.group),
		})
	}

	respond.OK(w, http.StatusOK, "group", groupDetails{
		Group:        t.group,
		Members:      views,
		IsGroupAdmin: grouppolicy.IsGroupAdmin(*u, t.group),
		IsMember:     grouppolicy.IsMember(*u, t.group),
	})
}

// adminTarget loads the group and requires the caller to administer it.
func (h *Handler) adminTarget(ctx context.Context, w http.ResponseWriter, r *http.Request, u *models.User) (target, bool) {
	t, err := h.loadGroup(ctx, r, u)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return target{}, false
	}
	if !grouppolicy.IsGroupAdmin(*u, t.group) {
		respond.Fail(w, r, apperr.Forbidden, "only the group creator or a cohort admin can do this")
		return target{}, false
	}
	return t, true
}

type roleRequirementsInput struct {
	RoleRequirements []roleRequirementInput `json:"role_requirements" validate:"max=10,dive" label:"Role requirements"`
}

// ServeUpdateRoleRequirements handles
// PATCH /cohorts/{cohortName}/groups/{groupName}/role-requirements.
func (h *Handler) ServeUpdateRoleRequirements(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	var in roleRequirementsInput
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	if err := inputval.Validate(in).Err(); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "update role requirements")
	defer cancel()

	t, ok := h.adminTarget(ctx, w, r, u)
	if !ok {
		return
	}
	reqs := toRoleRequirements(in.RoleRequirements)
	if err := h.Groups.SetRoleRequirements(ctx, t.group.ID, reqs); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	h.Audit.GroupUpdated(ctx, u.ID, t.group, "role_requirements")
	t.group.RoleRequirements = reqs
	respond.OK(w, http.StatusOK, "role requirements updated", t.group)
}

type announcementInput struct {
	Message string `json:"message" validate:"required,max=500" label:"Message"`
}

// ServePostAnnouncement handles
// POST /cohorts/{cohortName}/groups/{groupName}/announcements.
func (h *Handler) ServePostAnnouncement(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	var in announcementInput
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	in.Message = htmlsanitize.PlainText(in.Message)
	if err := inputval.Validate(in).Err(); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "post announcement")
	defer cancel()

	t, ok := h.adminTarget(ctx, w, r, u)
	if !ok {
		return
	}
	a := models.Announcement{Message: in.Message, CreatedBy: u.ID, CreatedAt: time.Now().UTC()}
	if err := h.Groups.AddAnnouncement(ctx, t.group.ID, a); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	h.Audit.GroupUpdated(ctx, u.ID, t.group, "announcement")
	respond.OK(w, http.StatusCreated, "announcement posted", a)
}

// ServeLeave handles PATCH /cohorts/{cohortName}/groups/{groupName}/leave.
func (h *Handler) ServeLeave(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "leave group")
	defer cancel()

	t, err := h.loadGroup(ctx, r, u)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	if err := h.Membership.Leave(ctx, u.ID, t.group.ID); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.OK(w, http.StatusOK, "you left the group", nil)
}

type removeMemberInput struct {
	Email string `json:"email" validate:"required,email" label:"Email"`
}

// ServeRemoveMember handles
// PATCH /cohorts/{cohortName}/groups/{groupName}/remove-member.
func (h *Handler) ServeRemoveMember(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	var in removeMemberInput
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	if err := inputval.Validate(in).Err(); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "remove member")
	defer cancel()

	t, ok := h.adminTarget(ctx, w, r, u)
	if !ok {
		return
	}
	member, err := h.Users.GetByEmail(ctx, normalize.Email(in.Email))
	if errors.Is(err, mongo.ErrNoDocuments) {
		respond.Fail(w, r, apperr.NotFound, "no user with that email")
		return
	}
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	if err := h.Membership.RemoveMember(ctx, u.ID, t.group.ID, member.ID); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.OK(w, http.StatusOK, "member removed", map[string]string{"email": member.Email})
}

// ServeDelete handles DELETE /cohorts/{cohortName}/groups/{groupName}.
// Members are released and the group's applications deleted with it.
func (h *Handler) ServeDelete(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "delete group")
	defer cancel()

	t, ok := h.adminTarget(ctx, w, r, u)
	if !ok {
		return
	}
	res, err := h.Membership.DeleteGroup(ctx, u.ID, t.group.ID)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.OK(w, http.StatusOK, "group deleted", res)
}

// historyLimit caps GET .../history.
const historyLimit = 100

type historyItem struct {
	Timestamp time.Time           `json:"timestamp"`
	EventType string              `json:"event_type"`
	ActorID   *primitive.ObjectID `json:"actor_id,omitempty"`
	UserID    *primitive.ObjectID `json:"user_id,omitempty"`
	Details   map[string]string   `json:"details,omitempty"`
}

// ServeHistory handles GET /cohorts/{cohortName}/groups/{groupName}/history:
// the group's membership events, newest first.
func (h *Handler) ServeHistory(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "group history")
	defer cancel()

	t, ok := h.adminTarget(ctx, w, r, u)
	if !ok {
		return
	}
	events, err := h.Events.GetByGroup(ctx, t.group.ID, historyLimit)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	out := make([]historyItem, 0, len(events))
	for _, e := range events {
		out = append(out, historyItem{
			Timestamp: e.Timestamp,
			EventType: e.EventType,
			ActorID:   e.ActorID,
			UserID:    e.UserID,
			Details:   e.Details,
		})
	}
	respond.OK(w, http.StatusOK, "group history", out)
}
