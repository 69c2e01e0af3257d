package membership

import (
	"context"
	"errors"
	"time"

	groupstore "github.com/dalemusser/cohorthub/internal/app/store/groups"
	"github.com/dalemusser/cohorthub/internal/app/system/apperr"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// CreateGroupInput is a validated group creation request.
type CreateGroupInput struct {
	CreatorID        primitive.ObjectID
	CohortID         primitive.ObjectID
	Name             string
	MaximumMembers   int // 0 uses Config.DefaultMaximumMembers
	RoleRequirements []models.RoleRequirement
}

// CreateGroup creates a group whose sole member is its creator. The creator
// must not be in a group or have a pending application.
func (s *Service) CreateGroup(ctx context.Context, in CreateGroupInput) (group models.Group, err error) {
	defer s.observe("create_group", time.Now(), &err)

	maxMembers := in.MaximumMembers
	if maxMembers == 0 {
		maxMembers = s.cfg.DefaultMaximumMembers
	}
	if maxMembers < 2 {
		return models.Group{}, apperr.New(apperr.Validation, "maximum_members must be at least 2")
	}

	err = s.inTxn(ctx, func(ctx context.Context) error {
		u, err := s.loadUser(ctx, in.CreatorID)
		if err != nil {
			return err
		}
		if u.CurrentGroup != nil {
			return apperr.New(apperr.AlreadyInGroup, "you are already a member of a group")
		}
		pending, err := s.apps.HasPending(ctx, u.ID)
		if err != nil {
			return err
		}
		if pending {
			return apperr.New(apperr.DuplicateApplication,
				"you have a pending application; withdraw it before creating a group")
		}

		group, err = s.groups.Create(ctx, models.Group{
			CohortID:         in.CohortID,
			Name:             in.Name,
			CreatedBy:        u.ID,
			MembersCount:     1,
			MaximumMembers:   maxMembers,
			RoleRequirements: in.RoleRequirements,
		})
		if errors.Is(err, groupstore.ErrDuplicateGroupName) {
			return apperr.Newf(apperr.Conflict, "a group named %q already exists in this cohort", in.Name)
		}
		if err != nil {
			return err
		}

		ok, err := s.users.AssignGroup(ctx, u.ID, group.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.AlreadyInGroup, "you are already a member of a group")
		}
		return nil
	})
	if err != nil {
		return models.Group{}, err
	}

	s.log.Info("group created",
		zap.String("group_id", group.ID.Hex()),
		zap.String("cohort_id", group.CohortID.Hex()),
		zap.String("creator_id", group.CreatedBy.Hex()))
	s.audit.GroupCreated(ctx, group)
	return group, nil
}

// Leave removes the caller from the group. Creators cannot leave; they
// delete the group instead.
func (s *Service) Leave(ctx context.Context, userID, groupID primitive.ObjectID) (err error) {
	defer s.observe("leave", time.Now(), &err)

	g, err := s.release(ctx, groupID, userID,
		"group creators cannot leave their group; delete it instead",
		"you are not a member of this group")
	if err != nil {
		return err
	}

	s.log.Info("member left group",
		zap.String("group_id", groupID.Hex()),
		zap.String("user_id", userID.Hex()))
	s.audit.MemberLeft(ctx, userID, g)
	return nil
}

// RemoveMember is the admin-invoked variant of Leave.
func (s *Service) RemoveMember(ctx context.Context, actorID, groupID, memberID primitive.ObjectID) (err error) {
	defer s.observe("remove_member", time.Now(), &err)

	g, err := s.release(ctx, groupID, memberID,
		"the group creator cannot be removed; delete the group instead",
		"user is not a member of this group")
	if err != nil {
		return err
	}

	s.log.Info("member removed from group",
		zap.String("group_id", groupID.Hex()),
		zap.String("user_id", memberID.Hex()),
		zap.String("actor_id", actorID.Hex()))
	s.audit.MemberRemoved(ctx, actorID, memberID, g)
	return nil
}

// release clears userID's membership and decrements the group in one
// transaction.
func (s *Service) release(ctx context.Context, groupID, userID primitive.ObjectID, creatorMsg, notMemberMsg string) (models.Group, error) {
	var group models.Group
	err := s.inTxn(ctx, func(ctx context.Context) error {
		g, err := s.loadGroup(ctx, groupID)
		if err != nil {
			return err
		}
		group = g
		if g.CreatedBy == userID {
			return apperr.New(apperr.GroupCreatorProtected, creatorMsg)
		}

		ok, err := s.users.ReleaseGroup(ctx, userID, groupID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.NotAMember, notMemberMsg)
		}

		ok, err = s.groups.DecrementMembers(ctx, groupID)
		if err != nil {
			return err
		}
		if !ok {
			return s.inconsistent("members_count would drop below one",
				zap.String("group_id", groupID.Hex()),
				zap.Int("members_count", g.MembersCount),
				zap.String("user_id", userID.Hex()))
		}
		return nil
	})
	return group, err
}

// DeleteResult reports what a cascade delete removed.
type DeleteResult struct {
	MembersReleased     int64 `json:"members_released"`
	ApplicationsDeleted int64 `json:"applications_deleted"`
}

// DeleteGroup releases every member, deletes every application that
// references the group, then deletes the group, all in one transaction.
func (s *Service) DeleteGroup(ctx context.Context, actorID, groupID primitive.ObjectID) (res DeleteResult, err error) {
	defer s.observe("delete_group", time.Now(), &err)

	var group models.Group
	err = s.inTxn(ctx, func(ctx context.Context) error {
		g, err := s.loadGroup(ctx, groupID)
		if err != nil {
			return err
		}
		group = g
		res, err = s.cascadeDelete(ctx, g)
		return err
	})
	if err != nil {
		return DeleteResult{}, err
	}

	s.log.Info("group deleted",
		zap.String("group_id", groupID.Hex()),
		zap.String("actor_id", actorID.Hex()),
		zap.Int64("members_released", res.MembersReleased),
		zap.Int64("applications_deleted", res.ApplicationsDeleted))
	s.audit.GroupDeleted(ctx, actorID, group, res.MembersReleased, res.ApplicationsDeleted)
	return res, nil
}

// cascadeDelete performs the three deletion steps. It must run inside a
// transaction.
func (s *Service) cascadeDelete(ctx context.Context, g models.Group) (DeleteResult, error) {
	var res DeleteResult
	released, err := s.users.ReleaseAllFromGroup(ctx, g.ID)
	if err != nil {
		return res, err
	}
	res.MembersReleased = released
	if released != int64(g.MembersCount) {
		// Proceed: deletion removes the counter anyway, but the drift is a bug.
		s.log.Error("members_count drift found while deleting group",
			zap.String("group_id", g.ID.Hex()),
			zap.Int("members_count", g.MembersCount),
			zap.Int64("members_released", released))
	}

	deleted, err := s.apps.DeleteByGroup(ctx, g.ID)
	if err != nil {
		return res, err
	}
	res.ApplicationsDeleted = deleted

	n, err := s.groups.Delete(ctx, g.ID)
	if err != nil {
		return res, err
	}
	if n != 1 {
		return res, apperr.NotFoundf("group not found")
	}
	return res, nil
}
